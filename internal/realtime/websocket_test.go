package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/aviya/internal/agent"
	"github.com/ashureev/aviya/internal/completion"
	"github.com/ashureev/aviya/internal/domain"
	"github.com/ashureev/aviya/internal/identity"
	"github.com/ashureev/aviya/internal/session"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticGateway string

func (g staticGateway) Complete(context.Context, string) completion.Result {
	return completion.Result{Text: string(g), Outcome: completion.OutcomeOK}
}

type plain struct{}

func (plain) Decorate(reply string, _ bool) (string, bool) { return reply, true }

type chatFunc func(context.Context, agent.ChatRequest) (agent.ChatResponse, error)

func (f chatFunc) Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error) {
	return f(ctx, req)
}

type noLogins struct{}

func (noLogins) GetLoginSession(context.Context, string) (*domain.LoginSession, error) {
	return nil, nil
}

func (noLogins) DeleteLoginSession(context.Context, string) error { return nil }

func (noLogins) GetIdentity(context.Context, string) (*domain.Identity, error) { return nil, nil }

func newChatServer(t *testing.T, chat Chatter, allowedOrigin string) (*httptest.Server, *ConnectionManager) {
	t.Helper()
	cm := NewConnectionManager()
	h := NewWebSocketHandler(chat, cm, allowedOrigin, false, 1<<16)
	srv := httptest.NewServer(identity.Middleware(noLogins{})(h))
	t.Cleanup(srv.Close)
	return srv, cm
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, in wsMessage) wsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(in)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var out wsMessage
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestWebSocket_ChatTurns(t *testing.T) {
	svc := agent.NewService(session.NewMemoryStore(100, time.Hour), nil, staticGateway("Hello there."), plain{})
	srv, _ := newChatServer(t, svc, "*")
	conn := dial(t, srv, http.Header{identity.SessionHeaderName: []string{"tab-1"}})

	out := roundTrip(t, conn, wsMessage{Type: "message", Content: "hi"})
	assert.Equal(t, wsMessage{Type: "reply", Content: "Hello there."}, out)

	for _, want := range []string{domain.ReplyWarnedOperator, domain.ReplyBannedOperator, domain.ReplySilenced} {
		out = roundTrip(t, conn, wsMessage{Type: "message", Content: "you are so dumb rafi"})
		assert.Equal(t, want, out.Content)
	}

	// A conversation named in the frame is separate from the socket's own.
	out = roundTrip(t, conn, wsMessage{Type: "message", Content: "hi", SessionID: "tab-2"})
	assert.Equal(t, "Hello there.", out.Content)
}

func TestWebSocket_ControlFrames(t *testing.T) {
	srv, _ := newChatServer(t, chatFunc(func(context.Context, agent.ChatRequest) (agent.ChatResponse, error) {
		return agent.ChatResponse{}, agent.ErrEmptyMessage
	}), "*")
	conn := dial(t, srv, nil)

	assert.Equal(t, wsMessage{Type: "pong"}, roundTrip(t, conn, wsMessage{Type: "ping"}))
	assert.Equal(t, "error", roundTrip(t, conn, wsMessage{Type: "resize"}).Type)
	assert.Equal(t, wsMessage{Type: "error", Content: agent.ErrEmptyMessage.Error()},
		roundTrip(t, conn, wsMessage{Type: "message", Content: " "}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","content":"invalid message"}`, string(raw))
}

func TestWebSocket_FailuresAnswerTrouble(t *testing.T) {
	tests := []struct {
		name string
		chat chatFunc
	}{
		{"error", func(context.Context, agent.ChatRequest) (agent.ChatResponse, error) {
			return agent.ChatResponse{}, errors.New("redis: connection refused")
		}},
		{"panic", func(context.Context, agent.ChatRequest) (agent.ChatResponse, error) {
			panic("boom")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newChatServer(t, tt.chat, "*")
			conn := dial(t, srv, nil)

			out := roundTrip(t, conn, wsMessage{Type: "message", Content: "hi"})
			assert.Equal(t, wsMessage{Type: "error", Content: agent.ReplyTrouble}, out)

			// The socket survives the failed turn.
			assert.Equal(t, "pong", roundTrip(t, conn, wsMessage{Type: "ping"}).Type)
		})
	}
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	srv, cm := newChatServer(t, chatFunc(func(context.Context, agent.ChatRequest) (agent.ChatResponse, error) {
		return agent.ChatResponse{Reply: "x"}, nil
	}), "https://aviya.example")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, cm.Count())
}

func TestWebSocket_NewSocketReplacesOld(t *testing.T) {
	srv, cm := newChatServer(t, chatFunc(func(context.Context, agent.ChatRequest) (agent.ChatResponse, error) {
		return agent.ChatResponse{Reply: "x"}, nil
	}), "*")
	header := http.Header{identity.SessionHeaderName: []string{"tab-1"}}

	first := dial(t, srv, header)
	assert.Equal(t, "pong", roundTrip(t, first, wsMessage{Type: "ping"}).Type)
	second := dial(t, srv, header)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	assert.Equal(t, "pong", roundTrip(t, second, wsMessage{Type: "ping"}).Type)

	assert.Eventually(t, func() bool { return cm.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
