package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SessionNameKey is the cookie session key holding the login display name.
const SessionNameKey = "name"

type SignalWSController struct {
	Gateway *app.Gateway
	Cfg     *config.Config
	Joins   *RoomRateLimiter
}

func NewSignalWSController(gw *app.Gateway, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Gateway: gw,
		Cfg:     cfg,
		Joins:   NewRoomRateLimiter(cfg.JoinLimit, cfg.JoinInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer <= 0 {
		buffer = 32
	}
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// displayName prefers the ?name= query and falls back to the login session.
func displayName(c *gin.Context) string {
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		return name
	}
	if name, ok := sessions.Default(c).Get(SessionNameKey).(string); ok {
		return name
	}
	return ""
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	name := displayName(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	user, err := domain.NewUser(name)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("name", name).Msg("rejecting connection")
		reject(ws, err)
		return
	}
	sid := core.SessionID(user.ID)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", user.Name).Msg("new WS connection")

	conn := newWsSignalConn(ws, ctl.Cfg.SendBuffer)
	sess := core.NewMemberSession(domain.NewMember(user), conn)
	ctx, cancel := context.WithCancel(ctx)

	ctl.Gateway.Connect(sess)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

// reject sends a terminal error frame and closes the socket.
func reject(ws *websocket.Conn, cause error) {
	defer ws.Close()
	frame, err := protocol.Encode(protocol.NewError(cause.Error()))
	if err != nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, cause.Error()), deadline)
}
