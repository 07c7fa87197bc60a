package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOneBot 最小化的 OneBot 实现：回应动作并可主动推送事件
type fakeOneBot struct {
	t        *testing.T
	token    string
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	seen  []string
}

func newFakeOneBot(t *testing.T, token string) (*fakeOneBot, *httptest.Server) {
	f := &fakeOneBot{t: t, token: token}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOneBot) serve(w http.ResponseWriter, r *http.Request) {
	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()

	for {
		var req actionRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		f.mu.Lock()
		f.seen = append(f.seen, req.Action)
		f.mu.Unlock()

		resp := map[string]any{"status": "ok", "retcode": 0, "echo": req.Echo}
		switch req.Action {
		case "send_group_msg":
			resp["data"] = map[string]any{"message_id": 777}
		case "fail":
			resp["status"] = "failed"
			resp["retcode"] = 1400
			resp["wording"] = "bad params"
		case "hang":
			continue
		}
		f.mu.Lock()
		err := conn.WriteJSON(resp)
		f.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (f *fakeOneBot) push(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.conns)
	require.NoError(f.t, f.conns[len(f.conns)-1].WriteJSON(v))
}

func (f *fakeOneBot) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startClient(t *testing.T, cfg Config, handler EventHandler) *Client {
	t.Helper()
	client, err := NewClient(cfg, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)
	return client
}

func TestClient_CallRoundTrip(t *testing.T) {
	_, srv := newFakeOneBot(t, "secret")
	client := startClient(t, Config{URL: wsURL(srv), AccessToken: "secret"}, nil)

	data, err := client.Call(context.Background(), "send_group_msg", map[string]any{"group_id": 1})
	require.NoError(t, err)

	var result sendMsgResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, int64(777), result.MessageID)
}

func TestClient_ActionFailure(t *testing.T) {
	_, srv := newFakeOneBot(t, "")
	client := startClient(t, Config{URL: wsURL(srv)}, nil)

	_, err := client.Call(context.Background(), "fail", nil)
	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, 1400, actionErr.RetCode)
	assert.Equal(t, "bad params", actionErr.Message)
}

func TestClient_CallTimeout(t *testing.T) {
	_, srv := newFakeOneBot(t, "")
	client := startClient(t, Config{URL: wsURL(srv), ActionTimeout: 50 * time.Millisecond}, nil)

	_, err := client.Call(context.Background(), "hang", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_EventsReachHandlerInOrder(t *testing.T) {
	fake, srv := newFakeOneBot(t, "")

	var (
		mu  sync.Mutex
		ids []int64
	)
	client := startClient(t, Config{URL: wsURL(srv)}, func(ctx context.Context, ev *Event) {
		mu.Lock()
		ids = append(ids, ev.MessageID)
		mu.Unlock()
	})

	fake.push(map[string]any{"post_type": "meta_event", "meta_event_type": "lifecycle", "self_id": 10001})
	for i := 1; i <= 3; i++ {
		fake.push(map[string]any{
			"post_type": "message", "message_type": "group", "self_id": 10001,
			"message_id": i, "group_id": 5, "user_id": 6, "message": []any{},
		})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, int64(10001), client.SelfID())
}

func TestClient_Reconnects(t *testing.T) {
	fake, srv := newFakeOneBot(t, "")
	client := startClient(t, Config{URL: wsURL(srv), ReconnectInterval: 20 * time.Millisecond}, nil)

	fake.dropAll()
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.conns) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	_, err := client.Call(context.Background(), "get_status", nil)
	require.NoError(t, err)
}

func TestClient_NotConnected(t *testing.T) {
	client, err := NewClient(Config{URL: "ws://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "get_status", nil)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = NewClient(Config{}, nil)
	assert.Error(t, err)
}
