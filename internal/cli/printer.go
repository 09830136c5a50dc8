package cli

import (
	"fmt"
	"io"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
)

// printer reports mesh changes on out. It runs on the mesh loop. packets
// reports inbound RTP per remote.
func printer(out io.Writer, packets func(domain.UserID) uint64) mesh.Observer {
	return mesh.Observer{
		Presence: func(self domain.User, participants []mesh.Participant) {
			fmt.Fprintln(out, ParticipantsTable(self, participants, packets))
		},
		Stream: func(remote domain.UserID, s *mesh.Stream) {
			if s == nil {
				log.Info().Str("module", "cli").Str("remote", string(remote)).Msg("stream gone")
				return
			}
			log.Info().Str("module", "cli").Str("remote", string(remote)).
				Str("stream", s.ID).Int("tracks", len(s.Tracks)).Msg("stream")
		},
		Message: func(from domain.User, msg mesh.ChatMessage) {
			if msg.Silent {
				return
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", msg.At.Format("15:04:05"), from.Name, msg.Text)
		},
		Data: func(from domain.UserID, data []byte) {
			fmt.Fprintf(out, "<data from %s> %s\n", from, data)
		},
	}
}

// ParticipantsTable renders the room as seen by self. packets may be nil.
func ParticipantsTable(self domain.User, participants []mesh.Participant, packets func(domain.UserID) uint64) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("%s (%s)", self.Name, self.ID)
	tw.AppendHeader(table.Row{"Name", "ID", "Status", "Sessions", "Tracks", "Packets"})
	for _, p := range participants {
		status := "connecting"
		if p.Connected {
			status = "connected"
		}
		var rx uint64
		if packets != nil {
			rx = packets(p.ID)
		}
		tw.AppendRow(table.Row{p.Name, p.ID, status, p.Sessions, p.Tracks, rx})
	}
	if len(participants) == 0 {
		tw.AppendFooter(table.Row{"alone in the room"})
	}
	return tw.Render()
}
