package models

import "time"

// NotificationInput carries the fields an admin supplies when sending.
type NotificationInput struct {
	Type      NotificationType `json:"type"`
	Title     string           `json:"title" binding:"required"`
	Message   string           `json:"message" binding:"required"`
	Data      map[string]any   `json:"data,omitempty"`
	Priority  Priority         `json:"priority"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	ActionURL string           `json:"actionUrl,omitempty"`
	ImageURL  string           `json:"imageUrl,omitempty"`
}

// SendResult is returned by the admin send path. It never carries an error.
type SendResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Notification *Notification `json:"notification,omitempty"`
}

// Analytics summarises the notifications table for the admin surface.
type Analytics struct {
	Total      int                      `json:"total"`
	Unread     int                      `json:"unread"`
	Read       int                      `json:"read"`
	ReadRate   float64                  `json:"readRate"`
	Global     int                      `json:"global"`
	Targeted   int                      `json:"targeted"`
	ByType     map[NotificationType]int `json:"byType"`
	ByPriority map[Priority]int         `json:"byPriority"`
	Last24h    int                      `json:"last24h"`
}

// ComputeAnalytics aggregates rows as of now.
func ComputeAnalytics(rows []Notification, now time.Time) Analytics {
	a := Analytics{
		ByType:     make(map[NotificationType]int),
		ByPriority: make(map[Priority]int),
	}
	dayAgo := now.Add(-24 * time.Hour)
	for _, n := range rows {
		a.Total++
		if n.Read {
			a.Read++
		} else {
			a.Unread++
		}
		if n.IsGlobal() {
			a.Global++
		} else {
			a.Targeted++
		}
		a.ByType[n.Type]++
		a.ByPriority[n.Priority]++
		if n.CreatedAt.After(dayAgo) {
			a.Last24h++
		}
	}
	if a.Total > 0 {
		a.ReadRate = float64(a.Read) / float64(a.Total)
	}
	return a
}
