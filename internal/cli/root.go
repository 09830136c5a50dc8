// Package cli implements the huddle-peer command line: a headless mesh
// participant plus a few inspection commands.
package cli

import (
	"github.com/dkeye/Huddle/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "huddle-peer",
		Short: "Headless participant for a huddle mesh call",
		Long: `huddle-peer joins a huddle room from the command line. It connects to
every other member over WebRTC, optionally sends a silent audio track and
relays chat typed on stdin.

Examples:
  huddle-peer rooms --server http://localhost:8080
  huddle-peer join standup --name bot --audio`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPeer(cmd.Flags())
			if err != nil {
				return err
			}
			if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(l)
			}
			return nil
		},
	}
	config.BindPeerFlags(root.PersistentFlags())
	root.AddCommand(newJoinCmd(), newRoomsCmd())
	return root
}
