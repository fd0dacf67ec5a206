package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"kraken/pkg/core"
)

// Config holds configuration options for a websocket client.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://ws-auth.kraken.com/v2.
	URL string
	// ReconnectEnabled turns on automatic reconnection after an unexpected close.
	ReconnectEnabled bool
	// ReconnectMaxAttempts bounds reconnection attempts. Zero means unlimited.
	ReconnectMaxAttempts int
	ReconnectBaseWait    time.Duration
	ReconnectMaxWait     time.Duration
	// PingInterval is the period between ping frames sent to keep the connection alive.
	PingInterval time.Duration
	// PongWait is how long past PingInterval the connection may stay silent.
	PongWait time.Duration
	// BufferSize is the capacity of each subscription channel.
	BufferSize int
}

// Client is a websocket connection that correlates replies to requests by
// their req_id and fans out unsolicited frames by their channel field.
type Client struct {
	config  Config
	state   *State
	conn    *gws.Conn
	handler *eventHandler
	logger  zerolog.Logger

	mu                sync.RWMutex
	subs              map[string]*subscription
	pending           map[int64]chan []byte
	connectedChan     chan struct{}
	stopChan          chan struct{}
	wg                sync.WaitGroup
	reconnectAttempts int
}

type subscription struct {
	channel string
	dataCh  chan []byte
}

type eventHandler struct {
	client *Client
}

// NewClient creates a websocket client. Zero-valued durations and sizes get
// defaults.
func NewClient(config Config) *Client {
	if config.ReconnectBaseWait == 0 {
		config.ReconnectBaseWait = 1 * time.Second
	}
	if config.ReconnectMaxWait == 0 {
		config.ReconnectMaxWait = 30 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}
	if config.BufferSize == 0 {
		config.BufferSize = 100
	}

	client := &Client{
		config:        config,
		state:         &State{},
		subs:          make(map[string]*subscription),
		pending:       make(map[int64]chan []byte),
		connectedChan: make(chan struct{}),
		stopChan:      make(chan struct{}),
		logger:        zerolog.Nop(),
	}
	client.state.Store(StateDisconnected)
	client.handler = &eventHandler{client: client}
	return client
}

func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

func (h *eventHandler) deadline() time.Time {
	return time.Now().Add(h.client.config.PingInterval + h.client.config.PongWait)
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	h.client.state.Store(StateConnected)

	h.client.mu.Lock()
	h.client.reconnectAttempts = 0
	select {
	case <-h.client.connectedChan:
	default:
		close(h.client.connectedChan)
	}
	h.client.mu.Unlock()

	h.client.logger.Info().
		Str("url", h.client.config.URL).
		Msg("websocket connected")

	_ = socket.SetDeadline(h.deadline())
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	closed := !h.client.state.CompareAndSwap(StateConnected, StateDisconnected) &&
		h.client.state.Load() == StateClosed

	h.client.mu.Lock()
	if h.client.conn == socket {
		h.client.conn = nil
	}
	h.client.connectedChan = make(chan struct{})
	for id, ch := range h.client.pending {
		close(ch)
		delete(h.client.pending, id)
	}
	h.client.mu.Unlock()

	if closed {
		return
	}

	h.client.logger.Warn().
		Err(err).
		Str("url", h.client.config.URL).
		Msg("websocket disconnected")

	if h.client.config.ReconnectEnabled {
		select {
		case <-h.client.stopChan:
		default:
			h.client.wg.Go(h.client.attemptReconnect)
		}
	}
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(h.deadline())
	_ = socket.WritePong(payload)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(h.deadline())
}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	_ = socket.SetDeadline(h.deadline())

	if len(message.Bytes()) == 0 {
		return
	}
	// gws recycles the buffer once the message is closed.
	data := append([]byte(nil), message.Bytes()...)

	h.client.logger.Debug().RawJSON("frame", data).Msg("websocket frame received")
	h.client.dispatch(data)
}

func (c *Client) dispatch(data []byte) {
	if node, err := sonic.Get(data, "req_id"); err == nil {
		if id, err := node.Int64(); err == nil {
			c.mu.Lock()
			ch, ok := c.pending[id]
			delete(c.pending, id)
			c.mu.Unlock()
			if ok {
				ch <- data
				return
			}
		}
	}

	node, err := sonic.Get(data, "channel")
	if err != nil {
		return
	}
	channel, err := node.String()
	if err != nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subs[channel]
	if !ok {
		return
	}
	select {
	case sub.dataCh <- data:
	default:
		c.logger.Warn().Str("channel", channel).Msg("channel buffer full, dropping frame")
	}
}

// Connect dials the configured URL and waits until the connection is open.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) &&
		!c.state.CompareAndSwap(StateReconnecting, StateConnecting) {
		current := c.state.Load()
		if current == StateConnected {
			return nil
		}
		return fmt.Errorf("invalid state for connect: %s", current)
	}

	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr: c.config.URL,
	})
	if err != nil {
		c.state.Store(StateDisconnected)
		return fmt.Errorf("connect websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = socket
	connected := c.connectedChan
	c.mu.Unlock()

	c.wg.Go(func() {
		socket.ReadLoop()
	})

	select {
	case <-connected:
		c.wg.Go(func() {
			c.keepalive(socket)
		})
		return nil
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		c.state.Store(StateDisconnected)
		return ctx.Err()
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		return core.ErrClientClosed
	}
}

func (c *Client) keepalive(socket *gws.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != socket {
				return
			}
			if err := socket.WritePing(nil); err != nil {
				c.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}

// Close shuts the connection down, fails pending calls and closes every
// subscription channel.
func (c *Client) Close() error {
	for {
		current := c.state.Load()
		if current == StateClosed {
			return nil
		}
		if c.state.CompareAndSwap(current, StateClosed) {
			break
		}
	}

	close(c.stopChan)

	c.mu.RLock()
	if c.conn != nil {
		_ = c.conn.WriteClose(1000, nil)
		_ = c.conn.NetConn().Close()
	}
	c.mu.RUnlock()

	c.wg.Wait()

	c.mu.Lock()
	for _, sub := range c.subs {
		close(sub.dataCh)
	}
	c.subs = make(map[string]*subscription)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) State() ConnState {
	return c.state.Load()
}

func (c *Client) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// Subscribe returns a channel receiving every unsolicited frame whose
// channel field equals channel. Subscribing twice replaces the earlier
// channel, which is closed.
func (c *Client) Subscribe(channel string) <-chan []byte {
	sub := &subscription{
		channel: channel,
		dataCh:  make(chan []byte, c.config.BufferSize),
	}

	c.mu.Lock()
	if old, ok := c.subs[channel]; ok {
		close(old.dataCh)
	}
	c.subs[channel] = sub
	c.mu.Unlock()

	c.logger.Debug().Str("channel", channel).Msg("subscribed to channel")
	return sub.dataCh
}

func (c *Client) Unsubscribe(channel string) {
	c.mu.Lock()
	if sub, ok := c.subs[channel]; ok {
		close(sub.dataCh)
		delete(c.subs, channel)
	}
	c.mu.Unlock()

	c.logger.Debug().Str("channel", channel).Msg("unsubscribed from channel")
}

func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.subs))
	for channel := range c.subs {
		subs = append(subs, channel)
	}
	return subs
}

func (c *Client) WriteMessage(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.state.Load() != StateConnected {
		return core.ErrNotConnected
	}

	c.logger.Debug().Int("size", len(data)).Msg("websocket frame sent")
	return c.conn.WriteMessage(gws.OpcodeText, data)
}

func (c *Client) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.WriteMessage(data)
}

// Call sends v and waits for the frame carrying the same req_id. The reply
// is returned undecoded.
func (c *Client) Call(ctx context.Context, reqID int64, v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}

	ch := make(chan []byte, 1)
	c.mu.Lock()
	if _, dup := c.pending[reqID]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("req_id %d already in flight", reqID)
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[reqID] == ch {
			delete(c.pending, reqID)
		}
		c.mu.Unlock()
	}()

	if err := c.WriteMessage(data); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, core.ErrNotConnected
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopChan:
		return nil, core.ErrClientClosed
	}
}

var errReconnectExhausted = errors.New("reconnect attempts exhausted")

func (c *Client) attemptReconnect() {
	if !c.state.CompareAndSwap(StateDisconnected, StateReconnecting) {
		return
	}

	for {
		c.mu.Lock()
		attempts := c.reconnectAttempts
		c.reconnectAttempts++
		c.mu.Unlock()

		if c.config.ReconnectMaxAttempts > 0 && attempts >= c.config.ReconnectMaxAttempts {
			c.state.CompareAndSwap(StateReconnecting, StateDisconnected)
			c.logger.Error().Err(errReconnectExhausted).Int("attempts", attempts).Msg("giving up")
			return
		}

		wait := c.backoff(attempts)
		c.logger.Info().
			Dur("wait", wait).
			Int("attempt", attempts+1).
			Msg("attempting reconnect")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.stopChan:
			timer.Stop()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err != nil {
			if c.state.Load() == StateClosed {
				return
			}
			c.logger.Error().Err(err).
				Int("attempt", attempts+1).
				Msg("reconnect failed")
			c.state.Store(StateReconnecting)
			continue
		}

		c.logger.Info().Msg("reconnected")
		return
	}
}

func (c *Client) backoff(attempts int) time.Duration {
	if attempts > 30 {
		return c.config.ReconnectMaxWait
	}
	return min(c.config.ReconnectBaseWait*time.Duration(1<<uint(attempts)), c.config.ReconnectMaxWait)
}
