// Package notifier subscribes to the backend's push channel for content changes.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/mmcdole/marquee/internal/domain"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultMinBackoff   = 1 * time.Second
	defaultMaxBackoff   = 60 * time.Second
	writeWait           = 5 * time.Second
)

// frame is one message on the socket
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Option configures a Notifier
type Option func(*Notifier)

// WithBackoff sets the reconnect delay bounds
func WithBackoff(initial, max time.Duration) Option {
	return func(n *Notifier) {
		n.minBackoff = initial
		n.maxBackoff = max
	}
}

// WithPingInterval sets how often a keepalive ping is sent
func WithPingInterval(d time.Duration) Option {
	return func(n *Notifier) { n.pingInterval = d }
}

// Notifier keeps one WebSocket subscription alive per device password,
// reconnecting with exponential backoff.
// Implements domain.Notifier.
type Notifier struct {
	socketURL    string
	dialer       *websocket.Dialer
	pingInterval time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	logger       *slog.Logger

	opMu sync.Mutex // Serializes Connect and Disconnect

	mu       sync.Mutex
	password string
	cancel   context.CancelFunc
	done     chan struct{}

	connected atomic.Bool
}

// New creates a Notifier for socketURL
func New(socketURL string, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		socketURL:    socketURL,
		dialer:       websocket.DefaultDialer,
		pingInterval: defaultPingInterval,
		minBackoff:   defaultMinBackoff,
		maxBackoff:   defaultMaxBackoff,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Connect subscribes for password and delivers events to handler.
// Dialing happens in the background; only a malformed socket URL is an
// error. Handlers run on their own goroutine and must not call Connect or
// Disconnect themselves: tearing a subscription down waits for its handlers.
func (n *Notifier) Connect(password string, handler domain.EventHandler) error {
	dialURL, err := n.dialURL(password)
	if err != nil {
		return err
	}

	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	if n.cancel != nil && n.password == password {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	n.stop()

	n.mu.Lock()
	defer n.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n.password = password
	n.cancel = cancel
	n.done = done

	go n.run(ctx, dialURL, handler, done)
	return nil
}

// Disconnect closes the subscription and waits for it to stop.
// No handler of that subscription runs after Disconnect returns.
func (n *Notifier) Disconnect() {
	n.opMu.Lock()
	defer n.opMu.Unlock()
	n.stop()
}

func (n *Notifier) stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done, n.password = nil, nil, ""
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether a socket is currently open
func (n *Notifier) Connected() bool {
	return n.connected.Load()
}

func (n *Notifier) dialURL(password string) (string, error) {
	u, err := url.Parse(n.socketURL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid socket url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("password", password)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// run dials, reads until the socket drops, and dials again
func (n *Notifier) run(ctx context.Context, dialURL string, handler domain.EventHandler, done chan struct{}) {
	var handlers sync.WaitGroup
	defer close(done)
	defer handlers.Wait()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.minBackoff
	b.MaxInterval = n.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		conn, _, err := n.dialer.DialContext(ctx, dialURL, nil)
		if err == nil {
			b.Reset()
			n.connected.Store(true)
			n.logger.Info("notifier connected")
			err = n.read(ctx, conn, handler, &handlers)
			n.connected.Store(false)
		}
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		n.logger.Warn("notifier disconnected", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// read consumes frames until the socket fails or ctx is cancelled
func (n *Notifier) read(ctx context.Context, conn *websocket.Conn, handler domain.EventHandler, handlers *sync.WaitGroup) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(n.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()
	defer func() {
		close(stop)
		conn.Close()
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			n.logger.Warn("notifier frame not understood", "error", err)
			continue
		}
		ev := domain.ParseEvent(f.Event)
		if ev.Kind == domain.EventUnknown {
			n.logger.Debug("ignoring notifier event", "event", f.Event)
			continue
		}
		n.logger.Debug("notifier event", "event", ev.Name, "kind", ev.Kind.String())
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			// Drop events of a subscription that is being torn down
			if ctx.Err() != nil {
				return
			}
			handler(ev)
		}()
	}
}
