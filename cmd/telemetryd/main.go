// Command telemetryd is the composition root: it opens a capture device,
// wires the decode pipeline into the combat engine, and serves the
// WebSocket/metrics API until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mgutz/ansi"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/capture"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/config"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/eventbus"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/httpapi"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/persistence"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/pipeline"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/protocol"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/telemetry"
)

const banner = ` _       _                         _              _
| |_ ___| | ___ _ __ ___   ___| |_ _ __ _   _  __| |
| __/ _ \ |/ _ \ '_ ' _ \ / _ \ __| '__| | | |/ _' |
| ||  __/ |  __/ | | | | |  __/ |_| |  | |_| | (_| |
 \__\___|_|\___|_| |_| |_|\___|\__|_|   \__, |\__,_|
                                         |___/       `

func main() {
	var (
		device      = flag.String("device", "", "capture device, overriding networkSettings.json (empty = settings file, else auto)")
		promisc     = flag.Bool("promisc", true, "enable promiscuous mode")
		httpAddr    = flag.String("http", ":7777", "http/websocket listen address")
		dataDir     = flag.String("data", "./data", "persistence root directory")
		netSettings = flag.String("network-settings", "./networkSettings.json", "path to networkSettings.json")
		engSettings = flag.String("engine-settings", "./engine.json", "path to engine.json")
		logLevel    = flag.String("log-level", "info", "zap log level")
		debugDump   = flag.Bool("debug-dump-events", false, "spew.Dump every decoded event")
	)

	flag.Parse()

	fmt.Println(ansi.Cyan + banner + ansi.Reset)

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Println(ansi.Red+"failed to initialize logger:", err, ansi.Reset)
		os.Exit(1)
	}

	defer log.Sync() //nolint:errcheck

	if err := run(*device, *promisc, *httpAddr, *dataDir, *netSettings, *engSettings, *debugDump, log); err != nil {
		log.Fatal("fatal startup error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func run(device string, promisc bool, httpAddr, dataDir, netSettingsPath, engSettingsPath string, debugDump bool, log *zap.Logger) error {
	netSettings, err := config.LoadNetworkSettings(netSettingsPath)
	if err != nil {
		return err
	}

	if device == "" && netSettings.SelectedAdapter != "" {
		device = netSettings.SelectedAdapter
	}

	engCfg, err := config.LoadEngineConfig(engSettingsPath)
	if err != nil {
		return err
	}

	metrics := telemetry.New(prometheus.DefaultRegisterer)

	decoder, err := protocol.New(log)
	if err != nil {
		// a missing zstd decompressor is fatal at startup.
		return err
	}

	src, err := capture.Open(capture.Options{Device: device, Promisc: promisc}, log)
	if err != nil {
		return err
	}

	defer src.Close()

	persist, err := persistence.NewWriter(dataDir, log)
	if err != nil {
		return err
	}

	bus := eventbus.New(log)

	eng := engine.New(engCfg, log,
		engine.WithPublisher(bus),
		engine.WithPersister(persist),
		engine.WithUserCachePersister(persist),
		engine.WithMetrics(metrics),
	)

	pl := pipeline.New(src, decoder, eng, metrics, log)
	pl.Debug = debugDump

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng.Run()

	go src.Run(ctx)
	go pl.Run(ctx)

	api := httpapi.New(bus, eng, dataDir, log)

	server := &http.Server{Addr: httpAddr, Handler: api.Handler()}

	go func() {
		log.Info("http api listening", zap.String("addr", httpAddr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down")

	_ = server.Close()

	eng.Stop()

	return nil
}
