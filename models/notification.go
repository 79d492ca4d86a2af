package models

import (
	"errors"
	"time"
)

// ErrNotificationNotFound is returned when a mutation targets a missing row.
var ErrNotificationNotFound = errors.New("notification not found")

type NotificationType string

const (
	TypeSystem      NotificationType = "system"
	TypeReward      NotificationType = "reward"
	TypeChallenge   NotificationType = "challenge"
	TypeAchievement NotificationType = "achievement"
	TypeAdmin       NotificationType = "admin"
	TypePersonal    NotificationType = "personal"
)

// NotificationTypes lists every known type in display order.
var NotificationTypes = []NotificationType{
	TypeSystem, TypeReward, TypeChallenge, TypeAchievement, TypeAdmin, TypePersonal,
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is one message a user may see. An empty UserID marks a
// global notification addressed to everyone.
type Notification struct {
	ID        string           `bson:"id" json:"id"`
	Type      NotificationType `bson:"type" json:"type"`
	Title     string           `bson:"title" json:"title"`
	Message   string           `bson:"message" json:"message"`
	Data      map[string]any   `bson:"data,omitempty" json:"data,omitempty"`
	Read      bool             `bson:"read" json:"read"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
	UserID    string           `bson:"userId,omitempty" json:"userId,omitempty"`
	AdminID   string           `bson:"adminId,omitempty" json:"adminId,omitempty"`
	Priority  Priority         `bson:"priority" json:"priority"`
	ExpiresAt *time.Time       `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	ActionURL string           `bson:"actionUrl,omitempty" json:"actionUrl,omitempty"`
	ImageURL  string           `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

// IsGlobal reports whether the notification targets all users.
func (n Notification) IsGlobal() bool {
	return n.UserID == ""
}

// Expired reports whether ExpiresAt is set and not after now.
func (n Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// VisibleTo reports whether userID should see n in its feed.
func (n Notification) VisibleTo(userID string) bool {
	return n.IsGlobal() || (userID != "" && n.UserID == userID)
}

// Normalize coerces a record from the store or the wire into a valid
// Notification. Unknown types become system, missing priority becomes
// medium and a zero CreatedAt becomes now. Records are never rejected.
func Normalize(n Notification, now time.Time) Notification {
	if !n.Type.Valid() {
		n.Type = TypeSystem
	}
	if !n.Priority.Valid() {
		n.Priority = PriorityMedium
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	return n
}

// NotificationStats is derived from a newest-first list on demand.
type NotificationStats struct {
	Total  int                      `json:"total"`
	Unread int                      `json:"unread"`
	ByType map[NotificationType]int `json:"byType"`
	Recent []Notification           `json:"recent"`
}

const recentStatsSize = 5

// ComputeStats builds the aggregate view of list.
func ComputeStats(list []Notification) NotificationStats {
	stats := NotificationStats{
		Total:  len(list),
		ByType: make(map[NotificationType]int),
	}
	for _, n := range list {
		if !n.Read {
			stats.Unread++
		}
		stats.ByType[n.Type]++
	}
	recent := list
	if len(recent) > recentStatsSize {
		recent = recent[:recentStatsSize]
	}
	stats.Recent = append([]Notification(nil), recent...)
	return stats
}
