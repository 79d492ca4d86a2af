package notificationRepo

import (
	"context"
	"time"

	"xquests/models"
)

// ListFilter selects rows for a listing. A zero filter lists global rows only.
type ListFilter struct {
	// UserID restricts the listing to rows addressed to this user plus
	// global rows. Ignored when AllUsers is set.
	UserID string
	// AllUsers lists every row regardless of addressee (admin listing).
	AllUsers bool
	// Limit caps the number of rows; zero means no limit.
	Limit int64
}

// NotificationRepository is the remote store of record for notifications.
type NotificationRepository interface {
	// List returns rows matching filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]models.Notification, error)
	// Insert stores n, assigning its ID and creation time, and returns the row.
	Insert(ctx context.Context, n models.Notification) (*models.Notification, error)
	// MarkRead sets read=true on one row visible to userID.
	MarkRead(ctx context.Context, userID, id string) error
	// MarkAllRead sets read=true on every row visible to userID.
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// Delete removes one row visible to userID.
	Delete(ctx context.Context, userID, id string) error
	// DeleteExpired removes rows whose expiresAt is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
