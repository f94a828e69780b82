package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned by a closed WSClientImpl.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Commitment sent with logsSubscribe.
	Commitment string
	// Logger receives reconnect diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        DefaultCommitment,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
// Every subscription owns its own connection and reconnect loop.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger
	dialer   websocket.Dialer

	requestID  atomic.Uint64
	reconnects atomic.Int64
	closed     atomic.Bool
	done       chan struct{}
	wg         sync.WaitGroup
}

var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a WebSocket client. Connections are opened per subscription.
func NewWSClient(endpoint string, config *WSClientConfig) *WSClientImpl {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		done:     make(chan struct{}),
	}
}

// Reconnects returns how many times subscriptions had to re-dial.
func (c *WSClientImpl) Reconnects() int64 {
	return c.reconnects.Load()
}

// SubscribeLogs dials, subscribes and then keeps the subscription alive until
// ctx is cancelled or Close is called. The first dial is synchronous so that
// configuration errors surface to the caller.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	conn, subID, err := c.open(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make(chan LogNotification, 1024)
	c.wg.Add(1)
	go c.run(ctx, filter, conn, subID, out)
	return out, nil
}

// Close stops every subscription and waits for their goroutines.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.wg.Wait()
	return nil
}

// run pumps notifications and re-dials with exponential backoff on failure.
func (c *WSClientImpl) run(ctx context.Context, filter LogsFilter, conn *websocket.Conn, subID int64, out chan<- LogNotification) {
	defer c.wg.Done()
	defer close(out)

	delay := c.config.ReconnectDelay
	for {
		err := c.pump(ctx, conn, subID, out)
		conn.Close()
		if c.stopped(ctx) {
			return
		}
		c.logger.Printf("[ws] subscription %d dropped: %v", subID, err)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}

			conn, subID, err = c.open(ctx, filter)
			if err == nil {
				break
			}
			if c.stopped(ctx) {
				return
			}
			c.logger.Printf("[ws] reconnect failed: %v", err)
		}
		c.reconnects.Add(1)
		delay = c.config.ReconnectDelay
	}
}

func (c *WSClientImpl) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || c.closed.Load()
}

// open dials the endpoint and waits for the logsSubscribe confirmation.
func (c *WSClientImpl) open(ctx context.Context, filter LogsFilter) (*websocket.Conn, int64, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("websocket dial: %w", err)
	}

	subID, err := c.subscribe(conn, filter)
	if err != nil {
		conn.Close()
		return nil, 0, err
	}
	return conn, subID, nil
}

func (c *WSClientImpl) subscribe(conn *websocket.Conn, filter LogsFilter) (int64, error) {
	reqID := c.requestID.Add(1)

	var mentions interface{} = "all"
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  []interface{}{mentions, map[string]string{"commitment": c.config.Commitment}},
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(c.config.SubscribeTimeout)
	for {
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("await subscription: %w", err)
		}

		var resp wsResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.ID != reqID {
			continue
		}
		if resp.Error != nil {
			return 0, fmt.Errorf("subscribe rejected: %w", resp.Error)
		}
		return resp.Result, nil
	}
}

// pump reads until the connection fails. Sends to out block rather than drop.
func (c *WSClientImpl) pump(ctx context.Context, conn *websocket.Conn, subID int64, out chan<- LogNotification) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.ping(conn, stopPing)

	// Unblock ReadMessage on shutdown.
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	for {
		select {
		case <-c.done:
			return ErrClientClosed
		default:
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var notif wsNotification
		if err := json.Unmarshal(msg, &notif); err != nil || notif.Method != "logsNotification" || notif.Params == nil {
			continue
		}
		if notif.Params.Subscription != subID {
			continue
		}

		n := LogNotification{
			Signature: notif.Params.Result.Value.Signature,
			Logs:      notif.Params.Result.Value.Logs,
			Err:       notif.Params.Result.Value.Err,
		}
		if notif.Params.Result.Context != nil {
			n.Slot = notif.Params.Result.Context.Slot
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClientClosed
		}
	}
}

func (c *WSClientImpl) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.config.WriteTimeout))
			conn.Close()
			return
		case <-ticker.C:
			// WriteControl is safe to call concurrently with the reader.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	ID     uint64    `json:"id"`
	Result int64     `json:"result"`
	Error  *RPCError `json:"error"`
}

type wsNotification struct {
	Method string                `json:"method"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Logs      []string    `json:"logs"`
			Err       interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
