package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"huddle-chat/internal/commands"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
	"huddle-chat/pkg/logger"
)

const commandTimeout = 15 * time.Second

type Handler struct {
	svc      *services.Services
	bus      *commands.Bus
	hub      *Hub
	upgrader websocket.Upgrader
	log      *EventLogger
}

// NewHandler serves /v1/ws. Connection throttling is left to the route's
// middleware.
func NewHandler(svc *services.Services, bus *commands.Bus, hub *Hub, l *logger.Logger) *Handler {
	return &Handler{
		svc: svc,
		bus: bus,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: NewEventLogger(l),
	}
}

func bearer(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	token, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return strings.TrimSpace(token)
}

// Connect authenticates the token, upgrades the connection and runs one
// session until the client goes away.
func (h *Handler) Connect(c *gin.Context) {
	token := bearer(c)
	id, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		var err error
		if id, err = h.svc.Verifier().Verify(token); err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("upgrade failed", id.UserID, "", zap.Error(err))
		return
	}

	client := NewClient(conn, id.UserID, h.log)
	ctx, cancel := context.WithCancel(context.WithValue(c.Request.Context(), logger.UserIdKey, id.UserID))
	defer cancel()

	sess := h.svc.NewSession(ctx, client.ID, func(ev services.Event) {
		client.Send(Frame{Type: string(ev.Type), Payload: ev.Payload})
	})
	defer sess.Close(context.WithoutCancel(ctx))

	go client.WriteLoop(ctx)
	if _, err := sess.SignIn(ctx, token); err != nil {
		client.Send(errorFrame("", err))
		h.log.Error("sign in failed", id.UserID, client.ID, err)
		client.Close()
		return
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)
	h.log.Info("connected", id.UserID, client.ID, zap.Int("connections", h.hub.UserConnections(id.UserID)+1))

	sctx := services.WithSession(ctx, sess)
	_ = client.ReadLoop(func(data []byte) {
		h.dispatch(sctx, client, data)
	})
	client.Close()
	h.log.Info("disconnected", id.UserID, client.ID)
}

// dispatch runs one command frame and replies with an ack or an error
// addressed to its request id.
func (h *Handler) dispatch(ctx context.Context, client *Client, data []byte) {
	env, cmd, err := commands.Decode(data)
	if err != nil {
		client.Send(errorFrame(env.ID, err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	res, err := h.bus.Execute(ctx, cmd)
	if err != nil {
		if !services.Silent(err) {
			h.log.Warn("command failed", client.UserID, client.ID, zap.String("command", env.Type), zap.Error(err))
		}
		client.Send(errorFrame(env.ID, err))
		return
	}
	client.Send(Frame{Type: FrameTypeAck, ID: env.ID, Payload: res})
}

// errorFrame reports err to the client. Server-side failures carry only the
// status text; their details stay in the log.
func errorFrame(requestID string, err error) Frame {
	message := err.Error()
	if status := services.HTTPStatus(err); status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	return Frame{
		Type:  FrameTypeError,
		ID:    requestID,
		Error: &FrameError{Code: services.ErrorCode(err), Message: message},
	}
}
