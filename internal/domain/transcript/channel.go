package transcript

import "errors"

// ErrChannelNotOpen is returned by Send when the stream channel is closed or
// was never established.
var ErrChannelNotOpen = errors.New("stream channel not open")

// Channel is a bidirectional stream bound to one session. Frames arrive through
// the OnEvent callback; registering nil (or Close) detaches the previous
// callback for every frame read afterwards. A frame already being delivered
// may still reach the old callback once after detach returns, so callbacks
// must ignore deliveries that arrive after their owner moved on.
type Channel interface {
	Send(msg OutboundMessage) error
	OnEvent(fn func(raw []byte))
	OnError(fn func(err error))
	Close() error
}
