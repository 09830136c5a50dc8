package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Peer configures the command-line participant.
type Peer struct {
	Server      string        `mapstructure:"server"`
	Name        string        `mapstructure:"name"`
	STUN        []string      `mapstructure:"stun"`
	SendAudio   bool          `mapstructure:"audio"`
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	AckTimeout  time.Duration `mapstructure:"ack-timeout"`
	LogLevel    string        `mapstructure:"log-level"`
}

// BindPeerFlags registers the peer flags on fs.
func BindPeerFlags(fs *pflag.FlagSet) {
	fs.String("server", "http://localhost:8080", "huddle server base URL")
	fs.String("name", "", "display name")
	fs.StringSlice("stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs")
	fs.Bool("audio", false, "send a silent audio track")
	fs.Duration("dial-timeout", 10*time.Second, "websocket dial timeout")
	fs.Duration("ack-timeout", 5*time.Second, "how long to wait for a call acknowledgement")
	fs.String("log-level", "info", "log level")
}

// LoadPeer reads peer settings from flags and HUDDLE_* environment variables.
// Flags win over the environment.
func LoadPeer(fs *pflag.FlagSet) (*Peer, error) {
	v := viper.New()
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	var p Peer
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	return &p, nil
}
