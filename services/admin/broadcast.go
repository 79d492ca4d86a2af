package admin

import (
	"context"
	"fmt"
	"time"

	notificationRepo "xquests/database/repository/notification"
	"xquests/models"
	"xquests/services/realtime"

	"go.uber.org/zap"
)

const (
	MessageSent         = "Notification sent successfully"
	MessageUnauthorized = "Authentication required"
	MessageUserRequired = "Target user is required"

	defaultPublishTimeout = 5 * time.Second
)

// SendGlobalNotification stores a notification for every user and
// broadcasts it. Errors are reported in the result, never returned.
func (s *DefaultAdminService) SendGlobalNotification(ctx context.Context, in models.NotificationInput) models.SendResult {
	return s.send(ctx, "", in)
}

// SendUserNotification stores a notification for userID and broadcasts it
// tagged for that user.
func (s *DefaultAdminService) SendUserNotification(ctx context.Context, userID string, in models.NotificationInput) models.SendResult {
	if userID == "" {
		return models.SendResult{Success: false, Message: MessageUserRequired}
	}
	return s.send(ctx, userID, in)
}

func (s *DefaultAdminService) send(ctx context.Context, userID string, in models.NotificationInput) models.SendResult {
	caller, ok := s.identity.Current(ctx)
	if !ok {
		return models.SendResult{Success: false, Message: MessageUnauthorized}
	}

	n := fromInput(in, userID)
	n.AdminID = caller.UserID

	created, err := s.store.Insert(ctx, n)
	if err != nil {
		s.logger.Error("failed to insert notification",
			zap.String("userId", userID),
			zap.String("adminId", caller.UserID),
			zap.Error(err),
		)
		return models.SendResult{Success: false, Message: fmt.Sprintf("Failed to send notification: %v", err)}
	}

	s.publish(ctx, *created)
	s.pushDevice(ctx, *created)

	return models.SendResult{Success: true, Message: MessageSent, Notification: created}
}

// fromInput applies the defaults of the admin path: admin type for global
// sends, personal for targeted ones, medium priority.
func fromInput(in models.NotificationInput, userID string) models.Notification {
	n := models.Notification{
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Data:      in.Data,
		Priority:  in.Priority,
		ExpiresAt: in.ExpiresAt,
		ActionURL: in.ActionURL,
		ImageURL:  in.ImageURL,
		UserID:    userID,
	}
	if !n.Type.Valid() {
		if userID == "" {
			n.Type = models.TypeAdmin
		} else {
			n.Type = models.TypePersonal
		}
	}
	if !n.Priority.Valid() {
		n.Priority = models.PriorityMedium
	}
	return n
}

// publish is best effort; the row is already stored and clients reconcile.
func (s *DefaultAdminService) publish(ctx context.Context, n models.Notification) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	now := time.Now().UTC()
	var msg realtime.Message = realtime.NotificationMessage{Notification: n, Timestamp: now}
	if !n.IsGlobal() {
		msg = realtime.UserNotificationMessage{UserID: n.UserID, Notification: n, Timestamp: now}
	}
	if err := s.publisher.SendMessage(pctx, msg); err != nil {
		s.logger.Warn("realtime publish failed, clients will reconcile",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func (s *DefaultAdminService) pushDevice(ctx context.Context, n models.Notification) {
	if s.push == nil {
		return
	}
	var err error
	if n.IsGlobal() {
		err = s.push.PushGlobal(ctx, n)
	} else {
		err = s.push.PushUser(ctx, n.UserID, n)
	}
	if err != nil {
		s.logger.Warn("push delivery failed", zap.String("notificationId", n.ID), zap.Error(err))
	}
}

// GetAllNotifications lists every row, newest first. A zero limit lists all.
func (s *DefaultAdminService) GetAllNotifications(ctx context.Context, limit int64) ([]models.Notification, error) {
	rows, err := s.store.List(ctx, notificationRepo.ListFilter{AllUsers: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}

func (s *DefaultAdminService) GetAnalytics(ctx context.Context) (models.Analytics, error) {
	rows, err := s.GetAllNotifications(ctx, 0)
	if err != nil {
		return models.Analytics{}, err
	}
	return models.ComputeAnalytics(rows, time.Now()), nil
}
