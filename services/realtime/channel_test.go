package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"xquests/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	h      ChannelHandlers
}

func (c *fakeConn) Broadcast(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentMessages(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for _, b := range c.sent {
		m, err := DecodeMessage(b)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

type fakeTransport struct {
	mu       sync.Mutex
	opens    int
	failNext int
	gate     chan struct{}
	conns    []*fakeConn
	tokens   []string
}

func (f *fakeTransport) Open(_ context.Context, _ string, token string, h ChannelHandlers) (TransportChannel, error) {
	f.mu.Lock()
	f.opens++
	f.tokens = append(f.tokens, token)
	gate := f.gate
	fail := f.failNext > 0
	if fail {
		f.failNext--
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, ErrHandshakeFailed
	}
	conn := &fakeConn{h: h}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	h.OnStatus(StatusSubscribed, nil)
	return conn, nil
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func globalMessage(id string) NotificationMessage {
	return NotificationMessage{Notification: models.Notification{ID: id, Type: models.TypeAdmin, Title: id}}
}

func (c *Channel) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func TestChannel_ConnectIsMemoized(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	c := NewChannel(tr, "notifications")

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := c.Connect(context.Background())
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}

	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, time.Millisecond)
	close(tr.gate)
	wg.Wait()

	assert.Equal(t, []bool{true, true, true, true, true}, results)
	assert.Equal(t, 1, tr.openCount())
	assert.True(t, c.GetConnectionStatus())

	ok, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, tr.openCount())
}

func TestChannel_ConnectFailureAllowsRetry(t *testing.T) {
	tr := &fakeTransport{failNext: 1}
	c := NewChannel(tr, "notifications")

	ok, err := c.Connect(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.False(t, c.GetConnectionStatus())

	ok, err = c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, tr.openCount())
}

func TestChannel_SendWhileConnected(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications")
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.SendMessage(context.Background(), globalMessage("n1")))

	sent := tr.lastConn().sentMessages(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "n1", sent[0].(NotificationMessage).Notification.ID)
}

func TestChannel_SendQueuesUntilConnectedInOrder(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	c := NewChannel(tr, "notifications")

	errs := make(chan error, 2)
	go func() { errs <- c.SendMessage(context.Background(), globalMessage("first")) }()
	require.Eventually(t, func() bool { return c.queueLen() == 1 }, time.Second, time.Millisecond)
	go func() { errs <- c.SendMessage(context.Background(), globalMessage("second")) }()
	require.Eventually(t, func() bool { return c.queueLen() == 2 }, time.Second, time.Millisecond)

	select {
	case err := <-errs:
		t.Fatalf("send returned before flush: %v", err)
	default:
	}

	close(tr.gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	sent := tr.lastConn().sentMessages(t)
	require.Len(t, sent, 2)
	assert.Equal(t, "first", sent[0].(NotificationMessage).Notification.ID)
	assert.Equal(t, "second", sent[1].(NotificationMessage).Notification.ID)
	assert.Equal(t, 1, tr.openCount())
}

func TestChannel_QueuedSendHonoursContext(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	defer close(tr.gate)
	c := NewChannel(tr, "notifications")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.SendMessage(ctx, globalMessage("late"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_HandlersReceiveAndRemove(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications")
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var gotA, gotB []string
	removeA := c.AddMessageHandler(func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		gotA = append(gotA, m.(NotificationMessage).Notification.ID)
	})
	c.AddMessageHandler(func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		gotB = append(gotB, m.(NotificationMessage).Notification.ID)
	})

	payload, err := EncodeMessage(globalMessage("n1"))
	require.NoError(t, err)
	conn := tr.lastConn()
	conn.h.OnBroadcast(payload)

	removeA()
	removeA()
	payload, err = EncodeMessage(globalMessage("n2"))
	require.NoError(t, err)
	conn.h.OnBroadcast(payload)

	// malformed payloads never reach handlers
	conn.h.OnBroadcast([]byte(`{"type":"typing"}`))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"n1"}, gotA)
	assert.Equal(t, []string{"n1", "n2"}, gotB)
}

func TestChannel_SetAuthTokenReconnects(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications")

	require.NoError(t, c.SetAuthToken(context.Background(), "t1"))
	assert.Equal(t, 0, tr.openCount())

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	first := tr.lastConn()

	require.NoError(t, c.SetAuthToken(context.Background(), "t2"))
	assert.Equal(t, 2, tr.openCount())
	assert.Equal(t, []string{"t1", "t2"}, tr.tokens)
	assert.True(t, first.isClosed())
	assert.True(t, c.GetConnectionStatus())
}

func TestChannel_DisconnectIgnoresLateStatus(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications", WithReconnectPolicy(NewReconnectPolicy(time.Millisecond, time.Millisecond, 0)))
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	conn := tr.lastConn()

	c.Disconnect()
	assert.False(t, c.GetConnectionStatus())
	assert.True(t, conn.isClosed())

	conn.h.OnStatus(StatusClosed, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.openCount())
	assert.False(t, c.GetConnectionStatus())
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications", WithReconnectPolicy(NewReconnectPolicy(time.Millisecond, 4*time.Millisecond, 0)))
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	tr.mu.Lock()
	tr.failNext = 2
	tr.mu.Unlock()
	tr.lastConn().h.OnStatus(StatusChannelError, errors.New("socket reset"))

	require.Eventually(t, c.GetConnectionStatus, time.Second, time.Millisecond)
	assert.Equal(t, 4, tr.openCount())
}

func TestChannel_NoPolicyStaysDown(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications")
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	tr.lastConn().h.OnStatus(StatusTimedOut, nil)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, c.GetConnectionStatus())
	assert.Equal(t, 1, tr.openCount())
}

func TestChannel_Presence(t *testing.T) {
	tr := &fakeTransport{}
	c := NewChannel(tr, "notifications")
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	tr.lastConn().h.OnPresenceSync([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, c.Presence())
}

type fakeFeed struct {
	opts     TableOptions
	onChange func(RowChangeMessage)
	stopped  bool
}

func (f *fakeFeed) Watch(_ context.Context, opts TableOptions, onChange func(RowChangeMessage)) (func(), error) {
	f.opts = opts
	f.onChange = onChange
	return func() { f.stopped = true }, nil
}

func TestChannel_SubscribeToTableIsSeparate(t *testing.T) {
	feed := &fakeFeed{}
	c := NewChannel(&fakeTransport{}, "notifications", WithChangeFeed(feed))

	mainCalls := 0
	c.AddMessageHandler(func(Message) { mainCalls++ })

	var got []RowChangeMessage
	unsubscribe, err := c.SubscribeToTable(context.Background(), TableOptions{Table: "notifications", Filter: "userId=eq.u1"}, func(m Message) {
		got = append(got, m.(RowChangeMessage))
	})
	require.NoError(t, err)
	assert.Equal(t, EventAll, feed.opts.Event)

	feed.onChange(RowChangeMessage{Event: EventInsert, Table: "notifications", Record: models.Notification{ID: "r1"}})
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].Record.ID)
	assert.Zero(t, mainCalls)

	unsubscribe()
	assert.True(t, feed.stopped)
}

func TestChannel_SubscribeToTableNeedsFeed(t *testing.T) {
	c := NewChannel(&fakeTransport{}, "notifications")
	_, err := c.SubscribeToTable(context.Background(), TableOptions{Table: "notifications"}, func(Message) {})
	assert.Error(t, err)
}

func TestChannel_ConnectAfterDisconnectStartsFreshAttempt(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	c := NewChannel(tr, "notifications")

	first := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Disconnect()

	second := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		second <- err
	}()
	require.Eventually(t, func() bool { return tr.openCount() == 2 }, time.Second, 5*time.Millisecond)
	close(tr.gate)

	assert.ErrorIs(t, <-first, ErrChannelClosed)
	require.NoError(t, <-second)
	assert.True(t, c.GetConnectionStatus())
	assert.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		closed := 0
		for _, conn := range tr.conns {
			if conn.isClosed() {
				closed++
			}
		}
		return len(tr.conns) == 2 && closed == 1
	}, time.Second, 5*time.Millisecond)
}
