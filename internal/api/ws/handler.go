package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/supervisor"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/terminal"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is left to the CORS layer
	},
}

// Options configures the websocket handler.
type Options struct {
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// InputRate and InputBurst throttle input messages per connection.
	InputRate  float64
	InputBurst int
	// Breaker guards delivery to the connection.
	Breaker resilience.Settings
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// Handler binds each websocket connection to one supervised session.
type Handler struct {
	manager *supervisor.Manager
	opts    Options
	log     *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *supervisor.Manager, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.InputRate <= 0 {
		opts.InputRate = 200
	}
	if opts.InputBurst <= 0 {
		opts.InputBurst = 64
	}
	return &Handler{manager: manager, opts: opts, log: opts.Logger.Named("ws")}
}

// HandleConnection upgrades the request and serves client messages until
// the connection drops. The session is torn down on disconnect.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.opts.Metrics.WSConnected(1)
	defer h.opts.Metrics.WSConnected(-1)

	cl := &client{
		conn:    conn,
		timeout: h.opts.WriteTimeout,
		metrics: h.opts.Metrics,
	}
	sess := h.manager.Create(cl, func(agentID string) {
		msg := newMessage(TypeAgentSession, cl.session)
		msg.AgentSessionID = agentID
		cl.send(msg)
	})
	cl.session = sess.ID().String()
	cl.log = h.log.With(
		zap.String("conn", id.NewConnID().String()),
		zap.String("session", cl.session))
	cl.breaker = resilience.New("ws-"+cl.session, h.opts.Breaker, cl.log)
	defer h.manager.Remove(sess.ID(), supervisor.ReasonDisconnect)

	cl.log.Info("Client connected", zap.String("remote", c.ClientIP()))
	cl.send(newMessage(TypeConnected, cl.session))

	ctx := c.Request.Context()
	limiter := rate.NewLimiter(rate.Limit(h.opts.InputRate), h.opts.InputBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cl.log.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			cl.sendError("invalid message: " + err.Error())
			continue
		}
		h.opts.Metrics.WSMessage("in", msg.Type)

		switch msg.Type {
		case TypeStart:
			h.handleStart(cl, sess, msg, c)
		case TypeInput:
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if !sess.Write([]byte(msg.Data)) {
				cl.log.Debug("Input dropped, no running child")
			}
		case TypeResize:
			sess.Resize(msg.Rows, msg.Cols)
		case TypeAbort:
			reply := newMessage(TypeAborted, cl.session)
			reply.Steps = sess.Abort()
			cl.send(reply)
		case TypeInfo:
			info := sess.Info()
			reply := newMessage(TypeInfo, cl.session)
			reply.Info = &info
			cl.send(reply)
		case TypePing:
			cl.send(newMessage(TypePong, cl.session))
		default:
			cl.sendError("unknown message type: " + msg.Type)
		}
	}
	cl.log.Info("Client disconnected")
}

func (h *Handler) handleStart(cl *client, sess *supervisor.Session, msg ClientMessage, c *gin.Context) {
	req := supervisor.StartRequest{
		Mode:        launch.Mode(msg.Mode),
		WorkDir:     msg.WorkDir,
		ResumeID:    msg.ResumeID,
		Geometry:    terminal.Geometry{Rows: msg.Rows, Cols: msg.Cols},
		Prompt:      msg.Prompt,
		Stdin:       launch.StdinMode(msg.Stdin),
		Conditioner: msg.Conditioner,
		Env:         msg.Env,
	}
	if err := sess.Start(c.Request.Context(), req); err != nil {
		cl.log.Warn("Start failed", zap.Error(err))
		cl.sendError(startError(err))
		return
	}

	info := sess.Info()
	reply := newMessage(TypeStarted, cl.session)
	reply.Info = &info
	cl.send(reply)
}

func startError(err error) string {
	switch {
	case errors.Is(err, supervisor.ErrNotRunning):
		return "session stopped while starting"
	default:
		return err.Error()
	}
}
