package cli

import (
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/go4org/hashtriemap"
)

// mediaStats counts inbound RTP per remote participant. Counters are fed
// from pion goroutines and read by the printer on the mesh loop.
type mediaStats struct {
	counters hashtriemap.HashTrieMap[domain.UserID, *rtc.PacketCounter]
}

// sinks plugs into rtc.Config.Sinks. Every attempt toward the same remote
// shares one counter.
func (s *mediaStats) sinks(remote domain.UserID) map[string]rtc.Sink {
	c, _ := s.counters.LoadOrStore(remote, &rtc.PacketCounter{})
	return map[string]rtc.Sink{"stats": c}
}

func (s *mediaStats) packets(remote domain.UserID) uint64 {
	if c, ok := s.counters.Load(remote); ok {
		return c.Packets()
	}
	return 0
}
