package changefeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chat-sync/pkg/logger"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads events from the backend's /ws endpoint.
// After a reconnect it emits one synthetic event per table so the consumer
// re-reads anything it may have missed while disconnected.
type WebSocketSource struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Log            *logger.Logger
}

func (s *WebSocketSource) endpoint() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	if s.Token != "" {
		q := u.Query()
		q.Set("token", s.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := s.endpoint()
	if err != nil {
		return nil, err
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if s.Token != "" {
		header.Set("Authorization", "Bearer "+s.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial change feed: %w", err)
	}
	return conn, nil
}

// Subscribe dials once synchronously so a bad URL or token fails fast.
func (s *WebSocketSource) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	log := s.Log
	if log == nil {
		log = logger.Nop()
	}
	delay := s.ReconnectDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{cancel: cancel, done: make(chan struct{}), conn: conn}
	go sub.run(ctx, s, handler, delay, log.With("component", "changefeed.websocket"))
	return sub, nil
}

type wsSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSubscription) setConn(c *websocket.Conn) {
	w.mu.Lock()
	w.conn = c
	w.mu.Unlock()
}

func (w *wsSubscription) closeConn() {
	w.mu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.mu.Unlock()
}

func (w *wsSubscription) run(ctx context.Context, s *WebSocketSource, handler Handler, delay time.Duration, log *logger.Logger) {
	defer close(w.done)

	go func() {
		<-ctx.Done()
		w.closeConn()
	}()

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	for {
		w.read(conn, handler, log)
		if ctx.Err() != nil {
			return
		}

		for {
			log.Warn("Change feed disconnected, reconnecting", "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			var err error
			conn, err = s.dial(ctx)
			if err == nil {
				break
			}
			log.Warn("Reconnect failed", "error", err)
		}
		w.setConn(conn)
		if ctx.Err() != nil {
			conn.Close()
			return
		}

		log.Info("Change feed reconnected")
		for _, t := range Tables() {
			handler(NewEvent(t))
		}
	}
}

func (w *wsSubscription) read(conn *websocket.Conn, handler Handler, log *logger.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e, err := Decode(data)
		if err != nil {
			log.Debug("Ignoring frame", "error", err)
			continue
		}
		handler(e)
	}
}

func (w *wsSubscription) Close() error {
	w.once.Do(func() {
		w.cancel()
		w.closeConn()
	})
	<-w.done
	return nil
}
