package rtc

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Sink consumes RTP packets. *webrtc.TrackLocalStaticRTP satisfies it.
type Sink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// ReadFunc returns the next packet of a remote track.
type ReadFunc func() (*rtp.Packet, error)

type sinkEntry struct {
	sink Sink
}

// Relay reads packets from one remote track and fans them out to sinks.
// A sink whose write fails is dropped.
type Relay struct {
	read ReadFunc

	mu    sync.RWMutex
	sinks map[string]*sinkEntry
}

func NewRelay(read ReadFunc) *Relay {
	return &Relay{read: read, sinks: make(map[string]*sinkEntry)}
}

func (r *Relay) AddSink(name string, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = &sinkEntry{sink: s}
}

func (r *Relay) SinkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Run pumps packets until the source fails or ctx is done. Without sinks
// it still reads, which keeps the track drained.
func (r *Relay) Run(ctx context.Context, logger zerolog.Logger) {
	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("relay ctx done")
			return
		}
		pkt, err := r.read()
		if err != nil {
			logger.Debug().Err(err).Msg("relay read RTP stopped")
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for name, e := range snapshot {
		if err := e.sink.WriteRTP(pkt); err != nil {
			logger.Warn().Err(err).Str("sink", name).Msg("relay write RTP error, dropping sink")
			dirty = append(dirty, name)
		}
	}

	if len(dirty) > 0 {
		r.mu.Lock()
		for _, name := range dirty {
			if cur, ok := r.sinks[name]; ok && cur == snapshot[name] {
				delete(r.sinks, name)
			}
		}
		r.mu.Unlock()
	}
}

// PacketCounter is a Sink that only counts what it sees.
type PacketCounter struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
}

func (c *PacketCounter) WriteRTP(pkt *rtp.Packet) error {
	c.packets.Add(1)
	c.bytes.Add(uint64(len(pkt.Payload)))
	return nil
}

func (c *PacketCounter) Packets() uint64 { return c.packets.Load() }
func (c *PacketCounter) Bytes() uint64   { return c.bytes.Load() }
