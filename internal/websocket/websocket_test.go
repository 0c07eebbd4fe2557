package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-chat/internal/auth"
	"huddle-chat/internal/docstore/memory"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/services"
	huddle_errors "huddle-chat/pkg/errors"
)

type fixture struct {
	srv      *httptest.Server
	store    *memory.Store
	hub      *Hub
	verifier *auth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := memory.New()
	users := repository.NewUserRepository(store, nil)
	f := &fixture{
		store:    store,
		hub:      NewHub(),
		verifier: auth.NewVerifier("ws-secret", "huddle", 0),
	}
	svc := services.New(services.Deps{
		Messages:      repository.NewMessageRepository(store, nil),
		Channels:      repository.NewChannelRepository(store, nil),
		Users:         users,
		Conversations: repository.NewConversationRepository(store, nil),
		Verifier:      f.verifier,
	})

	_, err := users.Upsert(ctx, &user.User{ID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)
	_, err = svc.Channels.Create(services.WithIdentity(ctx, &auth.Identity{UserID: "u1"}), "general", "")
	require.NoError(t, err)

	hubCtx, cancel := context.WithCancel(ctx)
	go f.hub.Run(hubCtx)
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/v1/ws", NewHandler(svc, services.NewCommandBus(), f.hub, nil).Connect)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Error   *FrameError     `json:"error"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(inbound) bool) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f inbound
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestErrorFrameHidesServerDetails(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{
			name:    "internal",
			err:     fmt.Errorf("read channels/general/messages/m1: %w", errors.New("dial tcp 10.0.0.7:6379: refused")),
			code:    services.ErrorCode(errors.New("x")),
			message: http.StatusText(http.StatusInternalServerError),
		},
		{
			name:    "unavailable",
			err:     fmt.Errorf("upload avatar: %w", huddle_errors.ErrServiceUnavailable),
			code:    services.ErrorCode(huddle_errors.ErrServiceUnavailable),
			message: http.StatusText(http.StatusServiceUnavailable),
		},
		{
			name:    "client error keeps its text",
			err:     fmt.Errorf("message: empty text: %w", huddle_errors.ErrInvalidInput),
			code:    services.ErrorCode(huddle_errors.ErrInvalidInput),
			message: "message: empty text: invalid input",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := errorFrame("r1", tt.err)
			assert.Equal(t, FrameTypeError, f.Type)
			assert.Equal(t, "r1", f.ID)
			require.NotNil(t, f.Error)
			assert.Equal(t, tt.code, f.Error.Code)
			assert.Equal(t, tt.message, f.Error.Message)
			assert.NotContains(t, f.Error.Message, "10.0.0.7")
		})
	}
}

func TestConnectRequiresToken(t *testing.T) {
	f := newFixture(t)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = f.dial(t, "not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionOverWebSocket(t *testing.T) {
	f := newFixture(t)
	token, err := f.verifier.Sign(auth.Identity{UserID: "u1", DisplayName: "Ada"}, time.Hour)
	require.NoError(t, err)

	conn, _, err := f.dial(t, token)
	require.NoError(t, err)

	readUntil(t, conn, func(m inbound) bool {
		return m.Type == string(services.EventAuth) && strings.Contains(string(m.Payload), `"signedIn":true`)
	})
	assert.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	send(t, conn, `{"id":"1","type":"select_channel","payload":{"channelId":"general"}}`)
	readUntil(t, conn, func(m inbound) bool { return m.Type == FrameTypeAck && m.ID == "1" })

	send(t, conn, `{"id":"2","type":"send_message","payload":{"text":"over the wire"}}`)
	readUntil(t, conn, func(m inbound) bool {
		if m.Type != string(services.EventTimeline) {
			return false
		}
		var frame struct {
			Days []struct {
				Items []struct {
					Text string `json:"text"`
					Mine bool   `json:"mine"`
				} `json:"items"`
			} `json:"days"`
		}
		require.NoError(t, json.Unmarshal(m.Payload, &frame))
		return len(frame.Days) == 1 && len(frame.Days[0].Items) == 1 && frame.Days[0].Items[0].Text == "over the wire"
	})

	send(t, conn, `{"id":"3","type":"launch_rockets"}`)
	failed := readUntil(t, conn, func(m inbound) bool { return m.Type == FrameTypeError && m.ID == "3" })
	require.NotNil(t, failed.Error)
	assert.Equal(t, "INVALID_INPUT", failed.Error.Code)

	send(t, conn, `{"id":"4","type":"select_channel","payload":{"channelId":"missing"}}`)
	failed = readUntil(t, conn, func(m inbound) bool { return m.Type == FrameTypeError && m.ID == "4" })
	assert.Equal(t, "NOT_FOUND", failed.Error.Code)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return f.hub.ClientCount() == 0 && f.store.ActiveListeners() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
