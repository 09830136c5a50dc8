package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBadSignal       = errors.New("bad signal payload")
	ErrChannelNotReady = errors.New("data channel not ready")
	ErrPeerFailed      = errors.New("peer connection failed")
)

const dataChannelLabel = "huddle"

// Payload is the negotiation message exchanged through the gateway. Its
// shape matches what simple-peer produces in browsers.
type Payload struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`

	Renegotiate bool `json:"renegotiate,omitempty"`
}

type Config struct {
	ICEServers []string
	Tracks     []webrtc.TrackLocal
	// Sinks returns the sinks fed by every inbound track of remote.
	Sinks         func(remote domain.UserID) map[string]Sink
	LoggerFactory logging.LoggerFactory

	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []string{"stun:stun.l.google.com:19302"},
	}
}

// Factory builds pion backed negotiators sharing one API instance.
type Factory struct {
	api    *webrtc.API
	pcCfg  webrtc.Configuration
	tracks []webrtc.TrackLocal
	sinks  func(remote domain.UserID) map[string]Sink
}

func NewFactory(cfg Config) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	pcCfg := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		pcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		pcCfg:  pcCfg,
		tracks: cfg.Tracks,
		sinks:  cfg.Sinks,
	}, nil
}

// New satisfies mesh.NegotiatorFactory.
func (f *Factory) New(opts mesh.NegotiatorOptions) (mesh.Negotiator, error) {
	pc, err := f.api.NewPeerConnection(f.pcCfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	var sinks map[string]Sink
	if f.sinks != nil {
		sinks = f.sinks(opts.Remote)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		pc:        pc,
		initiator: opts.Initiator,
		events:    opts.Events,
		sinks:     sinks,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With().Str("module", "rtc").Str("remote", string(opts.Remote)).Bool("initiator", opts.Initiator).Logger(),
	}
	if err := p.setup(f.tracks); err != nil {
		cancel()
		_ = pc.Close()
		return nil, err
	}
	return p, nil
}

// Peer is one pion PeerConnection driven through opaque payloads.
type Peer struct {
	pc        *webrtc.PeerConnection
	initiator bool
	events    mesh.NegotiatorEvents
	sinks     map[string]Sink
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	pending   []webrtc.ICECandidateInit
	closed    bool
	connected bool
}

func (p *Peer) setup(tracks []webrtc.TrackLocal) error {
	for _, t := range tracks {
		sender, err := p.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		go drainRTCP(sender)
	}
	if len(tracks) == 0 {
		if _, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add transceiver: %w", err)
		}
	}

	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		p.emit(Payload{Type: "candidate", Candidate: &init})
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Debug().Str("state", s.String()).Msg("peer connection state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			p.mu.Lock()
			first := !p.connected && !p.closed
			p.connected = true
			p.mu.Unlock()
			if first && p.events.OnConnect != nil {
				p.events.OnConnect()
			}
		case webrtc.PeerConnectionStateFailed:
			p.remoteClosed(ErrPeerFailed)
		case webrtc.PeerConnectionStateClosed:
			p.remoteClosed(nil)
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if p.events.OnTrack != nil {
			p.events.OnTrack(track)
		}
		go p.relay(track)
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.bindChannel(dc)
	})
	return nil
}

// Begin creates the data channel and the offer on the initiating side.
// The other side waits for the offer.
func (p *Peer) Begin() error {
	if !p.initiator {
		return nil
	}
	dc, err := p.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.bindChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	p.emit(Payload{Type: offer.Type.String(), SDP: offer.SDP})
	return nil
}

func (p *Peer) AcceptSignal(raw json.RawMessage) error {
	var msg Payload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignal, err)
	}
	switch {
	case msg.Type == "offer":
		return p.acceptOffer(msg.SDP)
	case msg.Type == "answer":
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return p.flushCandidates()
	case msg.Candidate != nil:
		return p.addCandidate(*msg.Candidate)
	case msg.Renegotiate:
		p.logger.Debug().Msg("renegotiate request ignored")
		return nil
	}
	return fmt.Errorf("%w: type %q", ErrBadSignal, msg.Type)
}

func (p *Peer) acceptOffer(sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if err := p.flushCandidates(); err != nil {
		return err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	p.emit(Payload{Type: answer.Type.String(), SDP: answer.SDP})
	return nil
}

// addCandidate queues candidates that arrive before the remote description.
func (p *Peer) addCandidate(c webrtc.ICECandidateInit) error {
	if p.pc.RemoteDescription() == nil {
		p.mu.Lock()
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

func (p *Peer) flushCandidates() error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add queued candidate: %w", err)
		}
	}
	return nil
}

func (p *Peer) SendData(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotReady
	}
	return dc.Send(data)
}

// Close shuts the connection down without raising OnClose.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	return p.pc.Close()
}

func (p *Peer) remoteClosed(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	if p.events.OnClose != nil {
		p.events.OnClose(err)
	}
	_ = p.pc.Close()
}

func (p *Peer) bindChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.events.OnData != nil {
			p.events.OnData(msg.Data)
		}
	})
}

func (p *Peer) emit(payload Payload) {
	if p.events.OnSignal == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Msg("marshal payload")
		return
	}
	p.events.OnSignal(raw)
}

func (p *Peer) relay(track *webrtc.TrackRemote) {
	r := NewRelay(func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	})
	for name, s := range p.sinks {
		r.AddSink(name, s)
	}
	r.Run(p.ctx, p.logger.With().Str("track_id", track.ID()).Logger())
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
