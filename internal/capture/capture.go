// Package capture opens a live pcap handle and emits raw link-layer frames
// into a bounded queue, the way the gravwell network-capture ingester opens
// its pcap.Handle with a BPF filter, snaplen and promiscuous mode before
// reading packets in a loop.
package capture

import (
	"context"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/linkdemux"
)

const (
	bpfFilter   = "ip and tcp"
	snapLen     = 65535
	minBuffer   = 10 << 20 // 10 MiB
	readTimeout = time.Second
)

// Frame is one captured link-layer frame handed off the capture goroutine.
type Frame struct {
	LinkType linkdemux.LinkType
	Data     []byte
	Seen     time.Time
}

// Source wraps a pcap handle and emits frames into a bounded queue.
type Source struct {
	handle   *pcap.Handle
	linkType linkdemux.LinkType
	log      *zap.Logger

	queue chan Frame
}

// Options configures device selection.
type Options struct {
	Device     string
	Promisc    bool
	BufferSize int
	QueueSize  int
}

// ErrUnsupportedLinkType is returned when the device's link type isn't one
// of Ethernet, BSD loopback (NULL), or Linux cooked capture (SLL).
var ErrUnsupportedLinkType = errors.New("unsupported link type")

// Open opens the named device (or the default device if opts.Device is
// "auto"/empty) and prepares it for capture. It does not start reading.
func Open(opts Options, log *zap.Logger) (*Source, error) {
	if log == nil {
		log = zap.NewNop()
	}

	device := opts.Device
	if device == "" || device == "auto" {
		d, err := defaultDevice()
		if err != nil {
			return nil, errors.Wrap(err, "resolve default capture device")
		}

		device = d
	}

	buf := opts.BufferSize
	if buf < minBuffer {
		buf = minBuffer
	}

	inactive, err := pcap.NewInactiveHandle(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open device %q", device)
	}
	defer inactive.CleanUp()

	_ = inactive.SetSnapLen(snapLen)
	_ = inactive.SetPromisc(opts.Promisc)
	_ = inactive.SetTimeout(readTimeout)
	_ = inactive.SetBufferSize(buf)

	handle, err := inactive.Activate()
	if err != nil {
		return nil, errors.Wrapf(err, "activate device %q", device)
	}

	if err = handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()

		return nil, errors.Wrap(err, "set bpf filter")
	}

	lt, ok := linkdemux.FromGopacket(handle.LinkType())
	if !ok {
		handle.Close()

		return nil, errors.Wrapf(ErrUnsupportedLinkType, "link type %s", handle.LinkType())
	}

	qsize := opts.QueueSize
	if qsize <= 0 {
		qsize = 4096
	}

	return &Source{
		handle:   handle,
		linkType: lt,
		log:      log.Named("capture"),
		queue:    make(chan Frame, qsize),
	}, nil
}

func defaultDevice() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", err
	}

	for _, d := range devices {
		if len(d.Addresses) > 0 {
			return d.Name, nil
		}
	}

	if len(devices) > 0 {
		return devices[0].Name, nil
	}

	return "", errors.New("no capture devices found")
}

// Frames returns the channel frames are delivered on.
func (s *Source) Frames() <-chan Frame {
	return s.queue
}

// Run reads packets until ctx is cancelled. Read errors are logged and
// capture continues, per spec §4.1. When the queue
// is saturated, frames are dropped and a warning is logged once per
// overflow period rather than blocking the capture loop.
func (s *Source) Run(ctx context.Context) {
	defer close(s.queue)

	var dropping bool

	for {
		if ctx.Err() != nil {
			return
		}

		data, _, err := s.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}

			s.log.Warn("capture read error", zap.Error(err))

			continue
		}

		cp := make([]byte, len(data))
		copy(cp, data)

		frame := Frame{LinkType: s.linkType, Data: cp, Seen: time.Now()}

		select {
		case s.queue <- frame:
			dropping = false
		default:
			if !dropping {
				s.log.Warn("capture queue saturated, dropping frames")
				dropping = true
			}
		}
	}
}

// Close releases the underlying pcap handle.
func (s *Source) Close() {
	s.handle.Close()
}
