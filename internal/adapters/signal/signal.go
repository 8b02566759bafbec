// Package signal is the WebSocket transport: it upgrades connections,
// runs the read/write pumps and translates wire messages into
// orchestrator calls. It performs I/O only; what goes to whom is decided
// by the app layer.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/app"
	"github.com/grovelab/grove/internal/core"
	"github.com/grovelab/grove/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Orch       *app.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// Conn wraps one WebSocket connection behind a buffered send channel.
// It implements core.Sender.
type Conn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
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

// client is the per-connection context the handlers work with. The
// identity was attached by the session middleware before the upgrade.
type client struct {
	id    domain.ConnID
	user  domain.User
	token string
	conn  *Conn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates from the cookie session and upgrades. A request
// without an attached identity is rejected before any core state is
// touched.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	sess := sessions.Default(c)
	login, _ := sess.Get("login").(string)
	token, _ := sess.Get("token").(string)
	name, _ := sess.Get("display_name").(string)

	user, err := domain.NewUser(login, name)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no identity attached"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cl := &client{
		id:    domain.ConnID(uuid.NewString()),
		user:  *user,
		token: token,
		conn:  &Conn{conn: ws, send: make(chan core.Frame, ctl.SendBuffer)},
	}
	log.Info().Str("module", "signal").Str("conn", string(cl.id)).Str("login", login).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(cl.id, cl.conn, cancel)

	go ctl.writePump(ctx, cl.conn)
	go ctl.readPump(ctx, cl)
}
