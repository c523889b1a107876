// Package httpapi exposes the engine's live event stream over WebSocket,
// a Prometheus /metrics endpoint, and a REST lookup for a past fight, the
// transport layer spec §6 describes sitting in front of the combat
// engine.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/eventbus"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/persistence"
)

// writeWait bounds how long a single websocket write may block before the
// connection is considered dead.
const writeWait = 5 * time.Second

// Server wires the event bus, engine snapshot accessor, and fight archive
// reader to HTTP handlers.
type Server struct {
	bus       *eventbus.Bus
	eng       *engine.Engine
	fightRoot string
	log       *zap.Logger
	upgrader  websocket.Upgrader
}

// New returns a Server ready to Handler().
func New(bus *eventbus.Bus, eng *engine.Engine, fightRoot string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		bus:       bus,
		eng:       eng,
		fightRoot: fightRoot,
		log:       log.Named("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the desktop overlay client is same-origin by construction;
			// this mirrors a local-only telemetry sidecar, not a public API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the mux the caller should serve over http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/fight/", s.handleFight)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// handleWS upgrades the connection and streams every eventbus.Message to
// it until either side disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))

		return
	}

	defer conn.Close()

	ch, id := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	snap := eventbus.Message{Topic: "data", Payload: map[string]interface{}{"code": 0, "user": s.eng.Snapshot()}}
	if err := s.writeMessage(conn, snap); err != nil {
		return
	}

	for msg := range ch {
		if err := s.writeMessage(conn, msg); err != nil {
			s.log.Debug("websocket write failed, dropping subscriber", zap.Error(err))

			return
		}
	}
}

func (s *Server) writeMessage(conn *websocket.Conn, msg eventbus.Message) error {
	body, err := eventbus.Marshal(msg)
	if err != nil {
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

	return conn.WriteMessage(websocket.TextMessage, body)
}

// handleFight serves a previously persisted fight's per-player summary
// map as JSON, read from the gzip-compressed archive persistence.Writer
// produced.
func (s *Server) handleFight(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/fight/"):]
	if id == "" {
		http.Error(w, "missing fight id", http.StatusBadRequest)

		return
	}

	var fightID int64
	if _, err := fmt.Sscan(id, &fightID); err != nil {
		http.Error(w, "invalid fight id", http.StatusBadRequest)

		return
	}

	users, err := persistence.ReadFightLog(s.fightRoot, fightID)
	if err != nil {
		http.Error(w, "fight not found", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(users); err != nil {
		s.log.Error("failed to encode fight response", zap.Error(err))
	}
}
