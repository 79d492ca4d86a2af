package admin

import (
	"context"
	"time"

	notificationRepo "xquests/database/repository/notification"
	"xquests/models"
	"xquests/services/identity"
	"xquests/services/notification"
	"xquests/services/realtime"

	"go.uber.org/zap"
)

// AdminService is the admin surface for creating and inspecting notifications.
type AdminService interface {
	SendGlobalNotification(ctx context.Context, in models.NotificationInput) models.SendResult
	SendUserNotification(ctx context.Context, userID string, in models.NotificationInput) models.SendResult
	GetAllNotifications(ctx context.Context, limit int64) ([]models.Notification, error)
	GetAnalytics(ctx context.Context) (models.Analytics, error)
}

// Store is the part of the notifications table the admin path writes and reads.
type Store interface {
	Insert(ctx context.Context, n models.Notification) (*models.Notification, error)
	List(ctx context.Context, filter notificationRepo.ListFilter) ([]models.Notification, error)
}

// Publisher sends a message over the realtime channel.
type Publisher interface {
	SendMessage(ctx context.Context, m realtime.Message) error
}

// DefaultAdminService is the production implementation.
type DefaultAdminService struct {
	store     Store
	publisher Publisher
	push      notification.PushService
	identity  identity.Provider
	logger    *zap.Logger

	publishTimeout time.Duration
}

// NewDefaultAdminService wires the admin path. push may be nil when FCM is
// not configured.
func NewDefaultAdminService(store Store, publisher Publisher, push notification.PushService, ident identity.Provider, logger *zap.Logger) *DefaultAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultAdminService{
		store:     store,
		publisher: publisher,
		push:      push,
		identity:  ident,
		logger:    logger.Named("admin"),

		publishTimeout: defaultPublishTimeout,
	}
}

// SetPublishTimeout bounds each realtime publish. Non-positive values are ignored.
func (s *DefaultAdminService) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}
