package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageHandler receives every inbound message; it filters by type itself.
type MessageHandler func(Message)

type connectAttempt struct {
	done chan struct{}
	err  error
}

type pendingSend struct {
	ctx     context.Context
	payload []byte
	done    chan error
}

// Channel is the realtime fan-in channel: one named broadcast channel with
// connection tracking, a send queue while disconnected and a reconnect
// policy that owns recovery after drops.
type Channel struct {
	transport Transport
	changes   ChangeFeed
	name      string
	policy    *ReconnectPolicy
	logger    *zap.Logger

	// sendMu orders direct sends behind the post-connect queue flush.
	sendMu sync.Mutex

	mu           sync.Mutex
	conn         TransportChannel
	connected    bool
	attempt      *connectAttempt
	generation   uint64
	token        string
	queue        []*pendingSend
	handlers     map[uint64]MessageHandler
	nextHandler  uint64
	presence     []string
	stopped      bool
	reconnecting bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithChangeFeed enables SubscribeToTable.
func WithChangeFeed(f ChangeFeed) ChannelOption {
	return func(c *Channel) { c.changes = f }
}

// WithReconnectPolicy enables automatic reconnects after a drop. Without a
// policy the channel stays disconnected until Connect is called again.
func WithReconnectPolicy(p *ReconnectPolicy) ChannelOption {
	return func(c *Channel) { c.policy = p }
}

func WithLogger(l *zap.Logger) ChannelOption {
	return func(c *Channel) { c.logger = l }
}

func NewChannel(transport Transport, name string, opts ...ChannelOption) *Channel {
	c := &Channel{
		transport: transport,
		name:      name,
		handlers:  make(map[uint64]MessageHandler),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("realtime").With(zap.String("channel", name))
	return c
}

// Connect joins the channel. Concurrent callers share one in-flight attempt.
// A failed attempt resets state so a later call retries.
func (c *Channel) Connect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return true, nil
	}
	c.stopped = false
	a, gen, token, start := c.beginAttemptLocked()
	c.mu.Unlock()
	if start {
		go c.open(a, gen, token)
	}

	select {
	case <-a.done:
		if a.err != nil {
			return false, a.err
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// beginAttemptLocked returns the in-flight attempt, creating one when none
// exists. start reports whether the caller must run it.
func (c *Channel) beginAttemptLocked() (a *connectAttempt, gen uint64, token string, start bool) {
	if c.attempt != nil {
		return c.attempt, 0, "", false
	}
	c.attempt = &connectAttempt{done: make(chan struct{})}
	c.generation++
	return c.attempt, c.generation, c.token, true
}

func (c *Channel) open(a *connectAttempt, gen uint64, token string) {
	conn, err := c.transport.Open(context.Background(), c.name, token, ChannelHandlers{
		OnBroadcast:    c.receive,
		OnPresenceSync: c.setPresence,
		OnStatus: func(s Status, err error) {
			c.onStatus(gen, s, err)
		},
	})

	c.mu.Lock()
	if c.attempt == a {
		c.attempt = nil
	}
	if err == nil && (c.stopped || gen != c.generation) {
		err = ErrChannelClosed
		go c.closeConn(conn)
	}
	if err != nil {
		a.err = err
		retry := c.shouldReconnectLocked()
		c.mu.Unlock()
		close(a.done)
		c.logger.Warn("connect failed", zap.Error(err))
		if retry {
			go c.reconnectLoop()
		}
		return
	}

	c.conn = conn
	c.connected = true
	pending := c.queue
	c.queue = nil
	c.sendMu.Lock()
	c.mu.Unlock()
	close(a.done)

	if c.policy != nil {
		c.policy.Reset()
	}
	c.logger.Info("connected", zap.Int("queued", len(pending)))
	c.flush(conn, pending)
	c.sendMu.Unlock()
}

// flush drains queued sends in FIFO order. Callers that gave up are skipped.
func (c *Channel) flush(conn TransportChannel, pending []*pendingSend) {
	for _, p := range pending {
		if p.ctx.Err() != nil {
			continue
		}
		p.done <- conn.Broadcast(p.ctx, p.payload)
	}
}

func (c *Channel) shouldReconnectLocked() bool {
	if c.policy == nil || c.stopped || c.reconnecting {
		return false
	}
	c.reconnecting = true
	return true
}

func (c *Channel) onStatus(gen uint64, s Status, err error) {
	if s == StatusSubscribed {
		return
	}
	c.mu.Lock()
	if gen != c.generation || !c.connected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	retry := c.shouldReconnectLocked()
	c.mu.Unlock()

	c.logger.Warn("channel status changed", zap.String("status", string(s)), zap.Error(err))
	go c.closeConn(conn)
	if retry {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries Connect under the policy until it succeeds, the
// channel is stopped, or attempts run out.
func (c *Channel) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		delay, ok := c.policy.Next()
		if !ok {
			c.logger.Error("giving up reconnecting", zap.Int("attempts", c.policy.Attempts()-1))
			return
		}
		time.Sleep(delay)
		if err := c.policy.Wait(context.Background()); err != nil {
			return
		}

		c.mu.Lock()
		stopped, connected := c.stopped, c.connected
		c.mu.Unlock()
		if stopped || connected {
			return
		}

		if err := c.connectOnce(); err == nil {
			return
		}
	}
}

// connectOnce runs one attempt synchronously. While the reconnect loop is
// active a failed attempt does not schedule another loop.
func (c *Channel) connectOnce() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	a, gen, token, start := c.beginAttemptLocked()
	c.mu.Unlock()

	if start {
		c.open(a, gen, token)
	} else {
		<-a.done
	}
	return a.err
}

func (c *Channel) closeConn(conn TransportChannel) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logger.Warn("unsubscribe failed", zap.Error(err))
	}
}

// Disconnect leaves the channel and stops automatic reconnects. An attempt
// still in flight is abandoned, so the next Connect starts a fresh one.
// Errors from the transport are logged, not returned.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.attempt = nil
	c.generation++
	c.presence = nil
	c.mu.Unlock()

	c.closeConn(conn)
}

// SetAuthToken stores token. A connected channel reconnects to apply it.
func (c *Channel) SetAuthToken(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	wasConnected := c.connected
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}
	c.Disconnect()
	_, err := c.Connect(ctx)
	return err
}

// SendMessage broadcasts m. While disconnected the message is queued, a
// connect is triggered, and the call returns once the queued message has
// been flushed or ctx ends.
func (c *Channel) SendMessage(ctx context.Context, m Message) error {
	payload, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.connected {
		conn := c.conn
		c.mu.Unlock()
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
		return conn.Broadcast(ctx, payload)
	}
	p := &pendingSend{ctx: ctx, payload: payload, done: make(chan error, 1)}
	c.queue = append(c.queue, p)
	c.mu.Unlock()

	go func() {
		if _, err := c.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Debug("connect for queued send failed", zap.Error(err))
		}
	}()

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("queued message not sent: %w", ctx.Err())
	}
}

// AddMessageHandler registers h and returns a function that removes it.
func (c *Channel) AddMessageHandler(h MessageHandler) func() {
	c.mu.Lock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Channel) receive(payload []byte) {
	m, err := DecodeMessage(payload)
	if err != nil {
		c.logger.Warn("dropping inbound message", zap.Error(err))
		return
	}
	c.dispatch(m)
}

func (c *Channel) dispatch(m Message) {
	c.mu.Lock()
	handlers := make([]MessageHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(m)
	}
}

func (c *Channel) setPresence(members []string) {
	c.mu.Lock()
	c.presence = append([]string(nil), members...)
	c.mu.Unlock()
}

// GetConnectionStatus reports whether the channel is currently joined.
func (c *Channel) GetConnectionStatus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Presence returns the members last reported by a presence sync.
func (c *Channel) Presence() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.presence...)
}

// SubscribeToTable opens a separate, uniquely named row-change
// subscription. It does not share the main channel's lifecycle and its
// events go only to h.
func (c *Channel) SubscribeToTable(ctx context.Context, opts TableOptions, h MessageHandler) (func(), error) {
	if c.changes == nil {
		return nil, errors.New("realtime: no change feed configured")
	}
	if opts.Table == "" {
		return nil, errors.New("realtime: table is required")
	}
	if opts.Event == "" {
		opts.Event = EventAll
	}
	name := fmt.Sprintf("table:%s:%s", opts.Table, uuid.NewString())
	logger := c.logger.With(zap.String("subscription", name))

	stop, err := c.changes.Watch(ctx, opts, func(m RowChangeMessage) {
		h(m)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	logger.Debug("table subscription opened")
	return func() {
		stop()
		logger.Debug("table subscription closed")
	}, nil
}
