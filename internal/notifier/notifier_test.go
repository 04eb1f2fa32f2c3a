package notifier_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/log"
	"github.com/mmcdole/marquee/internal/notifier"
)

var upgrader = websocket.Upgrader{}

// socketServer upgrades every request and hands the conn to serve
type socketServer struct {
	*httptest.Server
	connections atomic.Int32

	mu        sync.Mutex
	passwords []string
}

func newSocketServer(t *testing.T, serve func(n int, conn *websocket.Conn)) *socketServer {
	t.Helper()
	s := &socketServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.passwords = append(s.passwords, r.URL.Query().Get("password"))
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(int(s.connections.Add(1)), conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *socketServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/socket"
}

func (s *socketServer) seenPasswords() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.passwords...)
}

// drain blocks until the client goes away
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func collect() (domain.EventHandler, func() []domain.Event) {
	var mu sync.Mutex
	var events []domain.Event
	return func(ev domain.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		}, func() []domain.Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]domain.Event(nil), events...)
		}
}

func TestNotifier(t *testing.T) {
	t.Run("delivers known events", func(t *testing.T) {
		srv := newSocketServer(t, func(_ int, conn *websocket.Conn) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"onNewContent","data":{"id":5}}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"onSomethingElse"}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"onDeviceDeleted"}`))
			drain(conn)
		})

		n := notifier.New(srv.wsURL(), log.NullLogger())
		handler, events := collect()
		require.NoError(t, n.Connect("abc 123", handler))
		defer n.Disconnect()

		require.Eventually(t, func() bool { return len(events()) == 2 }, 2*time.Second, 10*time.Millisecond)

		kinds := map[domain.EventKind]bool{}
		for _, ev := range events() {
			kinds[ev.Kind] = true
		}
		assert.True(t, kinds[domain.EventContentChanged])
		assert.True(t, kinds[domain.EventDeviceDeleted])
		assert.True(t, n.Connected())
		assert.Equal(t, []string{"abc 123"}, srv.seenPasswords())
	})

	t.Run("reconnects after the socket drops", func(t *testing.T) {
		srv := newSocketServer(t, func(n int, conn *websocket.Conn) {
			if n == 1 {
				return // drop immediately
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"onUpdatedGlobalContent"}`))
			drain(conn)
		})

		n := notifier.New(srv.wsURL(), log.NullLogger(), notifier.WithBackoff(10*time.Millisecond, 50*time.Millisecond))
		handler, events := collect()
		require.NoError(t, n.Connect("abc123", handler))
		defer n.Disconnect()

		require.Eventually(t, func() bool { return len(events()) == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.GreaterOrEqual(t, srv.connections.Load(), int32(2))
	})

	t.Run("same password is a no-op, new password reconnects", func(t *testing.T) {
		srv := newSocketServer(t, func(_ int, conn *websocket.Conn) { drain(conn) })

		n := notifier.New(srv.wsURL(), log.NullLogger())
		handler, _ := collect()
		require.NoError(t, n.Connect("first", handler))
		require.Eventually(t, n.Connected, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, n.Connect("first", handler))

		require.NoError(t, n.Connect("second", handler))
		require.Eventually(t, func() bool { return len(srv.seenPasswords()) == 2 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"first", "second"}, srv.seenPasswords())

		n.Disconnect()
		n.Disconnect()
		assert.False(t, n.Connected())
	})

	t.Run("disconnect waits for running handlers", func(t *testing.T) {
		srv := newSocketServer(t, func(_ int, conn *websocket.Conn) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"onNewContent"}`))
			drain(conn)
		})

		n := notifier.New(srv.wsURL(), log.NullLogger())
		entered := make(chan struct{})
		release := make(chan struct{})
		var finished atomic.Bool
		require.NoError(t, n.Connect("abc123", func(domain.Event) {
			close(entered)
			<-release
			finished.Store(true)
		}))

		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}

		disconnected := make(chan struct{})
		go func() {
			n.Disconnect()
			close(disconnected)
		}()

		select {
		case <-disconnected:
			t.Fatal("disconnect returned while a handler was running")
		case <-time.After(100 * time.Millisecond):
		}

		close(release)
		select {
		case <-disconnected:
		case <-time.After(2 * time.Second):
			t.Fatal("disconnect did not return")
		}
		assert.True(t, finished.Load())
		assert.False(t, n.Connected())
	})

	t.Run("unreachable server keeps retrying until disconnect", func(t *testing.T) {
		n := notifier.New("ws://127.0.0.1:1/socket", log.NullLogger(), notifier.WithBackoff(5*time.Millisecond, 10*time.Millisecond))
		handler, _ := collect()
		require.NoError(t, n.Connect("abc123", handler))
		time.Sleep(50 * time.Millisecond)
		assert.False(t, n.Connected())
		n.Disconnect()
	})

	t.Run("rejects a non websocket url", func(t *testing.T) {
		n := notifier.New("http://backend/socket", log.NullLogger())
		handler, _ := collect()
		assert.Error(t, n.Connect("abc123", handler))
	})
}
