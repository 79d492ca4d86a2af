package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"xquests/models"
)

// ErrUnknownMessage is returned when an inbound payload has an unknown type.
var ErrUnknownMessage = errors.New("unknown realtime message type")

type MessageType string

const (
	TypeNotification     MessageType = "notification"
	TypeUserNotification MessageType = "user_notification"
	TypeRowChange        MessageType = "row_change"
)

// Message is one inbound or outbound realtime event. The concrete types are
// NotificationMessage, UserNotificationMessage and RowChangeMessage.
type Message interface {
	Type() MessageType
	isMessage()
}

// NotificationMessage carries a global notification sent by an admin.
type NotificationMessage struct {
	Notification models.Notification
	Timestamp    time.Time
}

// UserNotificationMessage carries a notification addressed to one user.
type UserNotificationMessage struct {
	UserID       string
	Notification models.Notification
	Timestamp    time.Time
}

type ChangeEvent string

const (
	EventInsert ChangeEvent = "INSERT"
	EventUpdate ChangeEvent = "UPDATE"
	EventDelete ChangeEvent = "DELETE"
	EventAll    ChangeEvent = "*"
)

// RowChangeMessage is a row-level change observed on a table.
type RowChangeMessage struct {
	Event     ChangeEvent
	Schema    string
	Table     string
	Record    models.Notification
	Timestamp time.Time
}

func (NotificationMessage) Type() MessageType     { return TypeNotification }
func (UserNotificationMessage) Type() MessageType { return TypeUserNotification }
func (RowChangeMessage) Type() MessageType        { return TypeRowChange }

func (NotificationMessage) isMessage()     {}
func (UserNotificationMessage) isMessage() {}
func (RowChangeMessage) isMessage()        {}

// envelope is the wire shape of a broadcast.
type envelope struct {
	Type      MessageType         `json:"type"`
	Payload   models.Notification `json:"payload"`
	UserID    string              `json:"userId,omitempty"`
	Event     ChangeEvent         `json:"event,omitempty"`
	Schema    string              `json:"schema,omitempty"`
	Table     string              `json:"table,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// EncodeMessage serializes m for broadcast.
func EncodeMessage(m Message) ([]byte, error) {
	var env envelope
	switch msg := m.(type) {
	case NotificationMessage:
		env = envelope{Type: TypeNotification, Payload: msg.Notification, Timestamp: msg.Timestamp}
	case UserNotificationMessage:
		env = envelope{Type: TypeUserNotification, Payload: msg.Notification, UserID: msg.UserID, Timestamp: msg.Timestamp}
	case RowChangeMessage:
		env = envelope{Type: TypeRowChange, Payload: msg.Record, Event: msg.Event, Schema: msg.Schema, Table: msg.Table, Timestamp: msg.Timestamp}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return json.Marshal(env)
}

// DecodeMessage parses a broadcast payload. The carried notification is
// normalized so malformed rows are coerced rather than dropped.
func DecodeMessage(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("invalid realtime payload: %w", err)
	}
	now := time.Now().UTC()
	n := models.Normalize(env.Payload, now)
	ts := env.Timestamp
	if ts.IsZero() {
		ts = now
	}

	switch env.Type {
	case TypeNotification:
		return NotificationMessage{Notification: n, Timestamp: ts}, nil
	case TypeUserNotification:
		userID := env.UserID
		if userID == "" {
			userID = n.UserID
		}
		return UserNotificationMessage{UserID: userID, Notification: n, Timestamp: ts}, nil
	case TypeRowChange:
		return RowChangeMessage{Event: env.Event, Schema: env.Schema, Table: env.Table, Record: n, Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}
