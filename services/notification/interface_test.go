package notification

import (
	"context"
	"errors"
	"testing"

	"xquests/models"

	"firebase.google.com/go/v4/messaging"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (m *fakeMessenger) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "projects/x/messages/1", nil
}

func newTokenStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTokenStore(client), mr
}

func TestRedisTokenStore(t *testing.T) {
	store, mr := newTokenStore(t)
	ctx := context.Background()

	token, err := store.GetToken(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.SetToken(ctx, "u1", "device-abc"))
	token, err = store.GetToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "device-abc", token)
	assert.True(t, mr.TTL("fcm:token:u1") > 0)

	require.NoError(t, store.DeleteToken(ctx, "u1"))
	token, err = store.GetToken(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestFCMPushService_Global(t *testing.T) {
	store, _ := newTokenStore(t)
	m := &fakeMessenger{}
	svc, err := NewFCMPushService(m, store, "all-users", nil)
	require.NoError(t, err)

	n := note("g1", 0)
	n.Data = map[string]any{"points": 50}
	require.NoError(t, svc.PushGlobal(context.Background(), n))

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, "all-users", msg.Topic)
	assert.Empty(t, msg.Token)
	assert.Equal(t, "title g1", msg.Notification.Title)
	assert.Equal(t, "g1", msg.Data["id"])
	assert.Equal(t, "50", msg.Data["points"])
	assert.Nil(t, msg.Android)
}

func TestFCMPushService_User(t *testing.T) {
	store, _ := newTokenStore(t)
	m := &fakeMessenger{}
	svc, err := NewFCMPushService(m, store, "all-users", nil)
	require.NoError(t, err)
	ctx := context.Background()

	n := note("p1", 0)
	n.Priority = models.PriorityUrgent
	err = svc.PushUser(ctx, "u1", n)
	assert.ErrorIs(t, err, ErrNoDeviceToken)

	require.NoError(t, store.SetToken(ctx, "u1", "device-abc"))
	require.NoError(t, svc.PushUser(ctx, "u1", n))
	require.Len(t, m.sent, 1)
	assert.Equal(t, "device-abc", m.sent[0].Token)
	require.NotNil(t, m.sent[0].Android)
	assert.Equal(t, "high", m.sent[0].Android.Priority)

	m.err = errors.New("quota")
	assert.Error(t, svc.PushUser(ctx, "u1", n))
}

func TestNewFCMPushService_RequiresClient(t *testing.T) {
	_, err := NewFCMPushService(nil, nil, "t", nil)
	assert.Error(t, err)
}
