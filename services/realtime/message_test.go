package realtime

import (
	"testing"
	"time"

	"xquests/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_UserNotification(t *testing.T) {
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	in := UserNotificationMessage{
		UserID:       "u1",
		Notification: models.Notification{ID: "n1", Type: models.TypePersonal, Title: "Hi", UserID: "u1", Priority: models.PriorityHigh, CreatedAt: ts},
		Timestamp:    ts,
	}

	b, err := EncodeMessage(in)
	require.NoError(t, err)

	out, err := DecodeMessage(b)
	require.NoError(t, err)
	msg, ok := out.(UserNotificationMessage)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "n1", msg.Notification.ID)
	assert.Equal(t, models.PriorityHigh, msg.Notification.Priority)
	assert.True(t, ts.Equal(msg.Timestamp))
}

func TestDecodeMessage_CoercesPayload(t *testing.T) {
	raw := []byte(`{"type":"notification","payload":{"id":"n9","type":"bogus","title":"x"}}`)

	out, err := DecodeMessage(raw)
	require.NoError(t, err)
	msg, ok := out.(NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, models.TypeSystem, msg.Notification.Type)
	assert.Equal(t, models.PriorityMedium, msg.Notification.Priority)
	assert.False(t, msg.Notification.CreatedAt.IsZero())
}

func TestDecodeMessage_UnknownType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"typing","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestDecodeMessage_Garbage(t *testing.T) {
	_, err := DecodeMessage([]byte(`nope`))
	assert.Error(t, err)
}

func TestDecodeMessage_UserIDFallsBackToPayload(t *testing.T) {
	out, err := DecodeMessage([]byte(`{"type":"user_notification","payload":{"id":"n1","userId":"u7"}}`))
	require.NoError(t, err)
	assert.Equal(t, "u7", out.(UserNotificationMessage).UserID)
}
