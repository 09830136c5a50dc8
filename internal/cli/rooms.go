package cli

import (
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/adapters/wsclient"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRoomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List active rooms on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPeer(cmd.Flags())
			if err != nil {
				return err
			}
			rooms, err := wsclient.FetchRooms(cmd.Context(), cfg.Server)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), RoomsTable(rooms))
			return nil
		},
	}
}

// RoomsTable renders one row per room with its member names.
func RoomsTable(rooms []core.RoomInfo) string {
	if len(rooms) == 0 {
		return "No active rooms"
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Room", "Users", "Names"})
	for _, r := range rooms {
		names := make([]string, 0, len(r.Users))
		for _, u := range r.Users {
			names = append(names, u.Name)
		}
		tw.AppendRow(table.Row{r.ID, len(r.Users), strings.Join(names, ", ")})
	}
	return tw.Render()
}
