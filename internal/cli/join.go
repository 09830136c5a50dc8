package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/wsclient"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room and stay connected until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPeer(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return join(ctx, cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func join(ctx context.Context, cfg *config.Peer, room string, in io.Reader, out io.Writer) error {
	name, err := domain.ValidateName(cfg.Name)
	if err != nil {
		return fmt.Errorf("--name: %w", err)
	}
	if _, err := domain.ParseRoomID(room); err != nil {
		return err
	}

	stats := &mediaStats{}
	rtcCfg := rtc.Config{
		ICEServers:    cfg.STUN,
		Sinks:         stats.sinks,
		LoggerFactory: rtc.NewLoggerFactory(log.Logger),
	}
	var silent *webrtc.TrackLocalStaticSample
	if cfg.SendAudio {
		silent, err = rtc.NewSilentAudio("audio", "huddle-"+name)
		if err != nil {
			return fmt.Errorf("audio track: %w", err)
		}
		rtcCfg.Tracks = append(rtcCfg.Tracks, silent)
	}
	factory, err := rtc.NewFactory(rtcCfg)
	if err != nil {
		return err
	}

	client, err := wsclient.Dial(ctx, cfg.Server, name, wsclient.Options{
		DialTimeout: cfg.DialTimeout,
		AckTimeout:  cfg.AckTimeout,
	})
	if err != nil {
		return err
	}
	m := mesh.New(client, factory.New, printer(out, stats.packets))
	client.OnMessage = m.Deliver

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := pool.New().WithContext(runCtx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		m.Run(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		err := client.Run(ctx)
		m.TransportClosed()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	if silent != nil {
		p.Go(func(ctx context.Context) error {
			if err := rtc.PumpSilence(ctx, silent); !errors.Is(err, context.Canceled) {
				return fmt.Errorf("silence: %w", err)
			}
			return nil
		})
	}
	// Stdin is read outside the pool: a blocked Scan cannot be interrupted.
	go readChat(in, m)

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	if err := m.Join(room); err != nil {
		cancel()
		<-done
		return err
	}
	log.Info().Str("module", "cli").Str("room", room).Str("name", name).Msg("joined")

	select {
	case <-ctx.Done():
		if err := m.Leave(); err != nil && !errors.Is(err, mesh.ErrNotInRoom) {
			log.Warn().Err(err).Str("module", "cli").Msg("leave")
		}
		cancel()
		return <-done
	case err := <-done:
		return err
	}
}

// roomControl is what stdin commands drive; *mesh.Mesh implements it.
type roomControl interface {
	Say(text string, command *string) error
	Redial(remote domain.UserID) error
	SendData(remote domain.UserID, data []byte) error
}

func readChat(in io.Reader, m roomControl) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := execLine(m, sc.Text()); err != nil {
			if errors.Is(err, mesh.ErrStopped) {
				return
			}
			log.Warn().Err(err).Str("module", "cli").Msg("command failed")
		}
	}
}

// execLine runs one stdin line. Plain text and unknown commands such as
// /quiet are sent as chat.
func execLine(m roomControl, line string) error {
	text, command := parseChatLine(line)
	if command == nil {
		if text == "" {
			return nil
		}
		return m.Say(text, nil)
	}
	switch *command {
	case "/redial":
		if text == "" {
			return errors.New("usage: /redial <participant id>")
		}
		return m.Redial(domain.UserID(text))
	case "/data":
		id, payload, _ := strings.Cut(text, " ")
		if id == "" || payload == "" {
			return errors.New("usage: /data <participant id> <text>")
		}
		return m.SendData(domain.UserID(id), []byte(payload))
	}
	if text == "" {
		return nil
	}
	return m.Say(text, command)
}

// parseChatLine splits a leading slash command from the message text.
func parseChatLine(line string) (string, *string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return line, nil
	}
	command, text, _ := strings.Cut(line, " ")
	return strings.TrimSpace(text), &command
}
