package notification

import (
	"context"
	"errors"
	"fmt"

	"xquests/models"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// ErrNoDeviceToken is returned when a targeted push has nobody to reach.
var ErrNoDeviceToken = errors.New("user has no registered device token")

// PushService delivers FCM pushes for notifications created by admins.
type PushService interface {
	PushGlobal(ctx context.Context, n models.Notification) error
	PushUser(ctx context.Context, userID string, n models.Notification) error
}

// Messenger is the subset of *messaging.Client used for sends.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPushService sends global notifications to a topic and targeted ones to
// the user's registered device token.
type FCMPushService struct {
	client Messenger
	tokens TokenStore
	topic  string
	logger *zap.Logger
}

func NewFCMPushService(client Messenger, tokens TokenStore, topic string, logger *zap.Logger) (*FCMPushService, error) {
	if client == nil || tokens == nil {
		return nil, fmt.Errorf("push service initialization error: messaging client or token store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMPushService{client: client, tokens: tokens, topic: topic, logger: logger}, nil
}

// PushGlobal sends n to every device subscribed to the global topic.
func (s *FCMPushService) PushGlobal(ctx context.Context, n models.Notification) error {
	msg := buildMessage(n)
	msg.Topic = s.topic

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("PushGlobal: failed to send FCM message: %w", err)
	}
	s.logger.Debug("global push sent", zap.String("messageId", id), zap.String("notificationId", n.ID))
	return nil
}

// PushUser looks up the user's device token and sends n to it.
func (s *FCMPushService) PushUser(ctx context.Context, userID string, n models.Notification) error {
	token, err := s.tokens.GetToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("PushUser: could not read token of user %s: %w", userID, err)
	}
	if token == "" {
		return fmt.Errorf("PushUser: user %s: %w", userID, ErrNoDeviceToken)
	}

	msg := buildMessage(n)
	msg.Token = token
	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("PushUser: failed to send FCM message: %w", err)
	}
	s.logger.Debug("user push sent", zap.String("messageId", id), zap.String("userId", userID))
	return nil
}

func buildMessage(n models.Notification) *messaging.Message {
	data := map[string]string{
		"id":       n.ID,
		"type":     string(n.Type),
		"priority": string(n.Priority),
	}
	if n.ActionURL != "" {
		data["actionUrl"] = n.ActionURL
	}
	for k, v := range n.Data {
		if _, taken := data[k]; !taken {
			data[k] = fmt.Sprint(v)
		}
	}

	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title:    n.Title,
			Body:     n.Message,
			ImageURL: n.ImageURL,
		},
		Data: data,
	}

	// high and urgent notifications wake the device.
	if n.Priority == models.PriorityHigh || n.Priority == models.PriorityUrgent {
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority",
				Sound:     "default",
			},
		}
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	}
	return msg
}
