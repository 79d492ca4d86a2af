package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	presencePrefix          = "presence:"
	defaultHandshakeTimeout = 10 * time.Second
)

// TokenAuthorizer validates a channel token and returns the member name to
// announce in presence.
type TokenAuthorizer func(token string) (member string, err error)

// RedisTransport implements Transport on Redis pub/sub. Each channel uses a
// data topic for broadcasts and a presence topic plus hash for membership.
type RedisTransport struct {
	client           *redis.Client
	authorize        TokenAuthorizer
	handshakeTimeout time.Duration
	logger           *zap.Logger
}

// NewRedisTransport creates a transport. authorize may be nil to accept
// every token.
func NewRedisTransport(client *redis.Client, authorize TokenAuthorizer, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{
		client:           client,
		authorize:        authorize,
		handshakeTimeout: defaultHandshakeTimeout,
		logger:           logger.Named("redis-transport"),
	}
}

func presenceKey(name string) string { return presencePrefix + name }

// Open subscribes to the channel's topics and waits for both confirmations.
func (t *RedisTransport) Open(ctx context.Context, name, token string, h ChannelHandlers) (TransportChannel, error) {
	member := "anon"
	if t.authorize != nil {
		m, err := t.authorize(token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
		member = m
	}
	member = member + ":" + uuid.NewString()

	ps := t.client.Subscribe(ctx, name, presenceKey(name))

	hctx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
	defer cancel()
	for confirmed := 0; confirmed < 2; {
		msg, err := ps.Receive(hctx)
		if err != nil {
			_ = ps.Close()
			status := StatusChannelError
			if errors.Is(err, context.DeadlineExceeded) {
				status = StatusTimedOut
			}
			notify(h.OnStatus, status, err)
			return nil, fmt.Errorf("%w: %s: %v", ErrHandshakeFailed, status, err)
		}
		if sub, ok := msg.(*redis.Subscription); ok && sub.Kind == "subscribe" {
			confirmed++
		}
	}

	rc := &redisChannel{
		client:   t.client,
		ps:       ps,
		name:     name,
		member:   member,
		handlers: h,
		logger:   t.logger.With(zap.String("channel", name)),
	}
	if err := rc.join(ctx); err != nil {
		rc.logger.Warn("presence join failed", zap.Error(err))
	}
	notify(h.OnStatus, StatusSubscribed, nil)

	rc.wg.Add(1)
	go rc.pump()
	return rc, nil
}

func notify(fn func(Status, error), s Status, err error) {
	if fn != nil {
		fn(s, err)
	}
}

type redisChannel struct {
	client   *redis.Client
	ps       *redis.PubSub
	name     string
	member   string
	handlers ChannelHandlers
	logger   *zap.Logger

	closed atomic.Bool
	once   sync.Once
	wg     sync.WaitGroup
}

func (c *redisChannel) join(ctx context.Context) error {
	if err := c.client.HSet(ctx, presenceKey(c.name), c.member, time.Now().Unix()).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, presenceKey(c.name), "join").Err()
}

func (c *redisChannel) leave(ctx context.Context) error {
	if err := c.client.HDel(ctx, presenceKey(c.name), c.member).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, presenceKey(c.name), "leave").Err()
}

// pump delivers inbound messages until the subscription ends.
func (c *redisChannel) pump() {
	defer c.wg.Done()
	ctx := context.Background()
	for {
		msg, err := c.ps.Receive(ctx)
		if err != nil {
			if c.closed.Load() {
				notify(c.handlers.OnStatus, StatusClosed, nil)
				return
			}
			c.logger.Warn("subscription dropped", zap.Error(err))
			_ = c.ps.Close()
			notify(c.handlers.OnStatus, StatusChannelError, err)
			return
		}

		m, ok := msg.(*redis.Message)
		if !ok {
			continue
		}
		if m.Channel == presenceKey(c.name) {
			c.syncPresence(ctx)
			continue
		}
		if c.handlers.OnBroadcast != nil {
			c.handlers.OnBroadcast([]byte(m.Payload))
		}
	}
}

func (c *redisChannel) syncPresence(ctx context.Context) {
	if c.handlers.OnPresenceSync == nil {
		return
	}
	members, err := c.client.HKeys(ctx, presenceKey(c.name)).Result()
	if err != nil {
		c.logger.Warn("presence sync failed", zap.Error(err))
		return
	}
	sort.Strings(members)
	c.handlers.OnPresenceSync(members)
}

func (c *redisChannel) Broadcast(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if err := c.client.Publish(ctx, c.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", c.name, err)
	}
	return nil
}

// Close leaves presence and unsubscribes. It is safe to call more than once.
func (c *redisChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		var errs []string
		if lerr := c.leave(ctx); lerr != nil {
			errs = append(errs, lerr.Error())
		}
		if cerr := c.ps.Close(); cerr != nil {
			errs = append(errs, cerr.Error())
		}
		c.wg.Wait()
		if len(errs) > 0 {
			err = fmt.Errorf("close %s: %s", c.name, strings.Join(errs, "; "))
		}
	})
	return err
}
