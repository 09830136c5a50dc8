package core

//go:generate mockgen -source=signal_iface.go -destination=mock_core/signal_mock.go -package=mock_core

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
