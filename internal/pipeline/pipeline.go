// Package pipeline wires the capture, defragmentation, flow routing, TCP
// reassembly and frame splitting stages together into the single
// goroutine that feeds decoded events into the combat engine.
//
// This is the composition root's equivalent of the teacher's
// decoder/stream/tcpConnection.go reassembly.StreamFactory: one worker
// pulling off a channel of captured frames, parsing just enough of the
// IPv4/TCP headers to drive the defragmenter and reassembler, the rest
// delegated to the dedicated internal packages.
package pipeline

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/capture"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/flowkey"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/flowrouter"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/frame"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/gameevent"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/ipdefrag"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/linkdemux"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/tcpreassembly"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/telemetry"
)

// idleCheckMod throttles how often CheckIdle runs relative to incoming
// frames: every idleCheckMod'th frame, rather than a separate ticker, to
// keep the pipeline single-goroutine and allocation-free on the hot path.
const idleCheckMod = 256

// Pipeline owns one capture source and drives frames through defrag,
// flow identification, reassembly and frame splitting into decoded game
// events delivered to an Engine.
type Pipeline struct {
	src     *capture.Source
	defrag  *ipdefrag.Defragmenter
	flow    *flowrouter.Identifier
	reasm   *tcpreassembly.Reassembler
	split   *frame.Splitter
	decoder gameevent.Decoder
	eng     *engine.Engine
	metrics *telemetry.Metrics
	log     *zap.Logger

	// Debug, when set, spew.Dumps every decoded event to stdout, whatever
	// the log level.
	// Mirrors the teacher's decoder/stream/tcpConnection.go use of
	// spew.Dump on capture metadata for ad-hoc protocol debugging.
	Debug bool

	activeFlow flowkey.Key
	hasFlow    bool
	frameCount uint64
}

// New wires a Pipeline around an already-open capture.Source.
func New(src *capture.Source, decoder gameevent.Decoder, eng *engine.Engine, metrics *telemetry.Metrics, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}

	log = log.Named("pipeline")
	reasm := tcpreassembly.New(log)

	return &Pipeline{
		src:     src,
		defrag:  ipdefrag.New(log),
		flow:    flowrouter.New(log),
		reasm:   reasm,
		split:   frame.New(reasm, log),
		decoder: decoder,
		eng:     eng,
		metrics: metrics,
		log:     log,
	}
}

// Run drains frames from the capture source until ctx is done or the
// source closes its channel.
func (p *Pipeline) Run(ctx context.Context) {
	defer p.defrag.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-p.src.Frames():
			if !ok {
				return
			}

			p.handleFrame(f)
		}
	}
}

func (p *Pipeline) handleFrame(f capture.Frame) {
	p.metrics.IncFramesCaptured(1)
	p.metrics.AddBytesCaptured(len(f.Data))

	p.frameCount++
	if p.frameCount%idleCheckMod == 0 && p.reasm.CheckIdle(f.Seen) {
		p.flow.Reset()
		p.hasFlow = false
	}

	ipPayload, ok := linkdemux.Demux(f.LinkType, f.Data)
	if !ok {
		return
	}

	ipv4 := layers.IPv4{}
	if err := ipv4.DecodeFromBytes(ipPayload, gopacket.NilDecodeFeedback); err != nil {
		return
	}

	if ipv4.Protocol != layers.IPProtocolTCP {
		return
	}

	datagram, ok := p.defrag.Insert(
		ipv4.Id,
		ipv4.SrcIP.String(),
		ipv4.DstIP.String(),
		uint8(ipv4.Protocol),
		int(ipv4.FragOffset),
		ipv4.Flags&layers.IPv4MoreFragments != 0,
		ipv4.Payload,
	)
	if !ok {
		return
	}

	tcp := layers.TCP{}
	if err := tcp.DecodeFromBytes(datagram, gopacket.NilDecodeFeedback); err != nil {
		return
	}

	key := flowkey.Key{
		SrcIP:   ipv4.SrcIP.String(),
		DstIP:   ipv4.DstIP.String(),
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
	}

	p.handleSegment(key, tcp.Seq, tcp.Ack, tcp.Payload)
}

// handleSegment feeds one TCP segment through flow identification and
// reassembly once the scene-server flow is known, discarding segments
// belonging to any other flow.
func (p *Pipeline) handleSegment(key flowkey.Key, seq, ack uint32, payload []byte) {
	if !p.hasFlow {
		ident, ok := p.flow.Inspect(seq, ack, payload)
		if !ok {
			return
		}

		if ident.Direction == flowrouter.Reverse {
			p.activeFlow = key.Reverse()
		} else {
			p.activeFlow = key
		}

		p.hasFlow = true
		p.reasm.Init(ident.InitSeq)

		p.log.Info("scene-server flow confirmed", zap.String("flow", p.activeFlow.String()))
	}

	if key != p.activeFlow {
		return
	}

	p.reasm.Admit(seq, payload)

	p.split.Split(func(body []byte) {
		events, err := p.decoder.Decode(body)
		if err != nil {
			p.log.Warn("failed to decode application frame", zap.Error(err), zap.Int("length", len(body)))

			return
		}

		for _, ev := range events {
			if p.Debug {
				spew.Dump(ev)
			}

			p.eng.HandleEvent(ev)
		}
	})
}
