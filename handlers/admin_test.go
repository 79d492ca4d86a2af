package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"xquests/models"
	"xquests/services/admin"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdminService struct {
	result    models.SendResult
	lastUser  string
	lastInput models.NotificationInput
	limit     int64
	listErr   error
}

func (f *fakeAdminService) SendGlobalNotification(ctx context.Context, in models.NotificationInput) models.SendResult {
	f.lastInput = in
	return f.result
}

func (f *fakeAdminService) SendUserNotification(ctx context.Context, userID string, in models.NotificationInput) models.SendResult {
	f.lastUser = userID
	f.lastInput = in
	return f.result
}

func (f *fakeAdminService) GetAllNotifications(ctx context.Context, limit int64) ([]models.Notification, error) {
	f.limit = limit
	return nil, f.listErr
}

func (f *fakeAdminService) GetAnalytics(ctx context.Context) (models.Analytics, error) {
	return models.Analytics{Total: 3}, f.listErr
}

func adminRouter(svc admin.AdminService) *gin.Engine {
	ah := NewAdminHandler(svc)
	r := gin.New()
	g := r.Group("/api/admin/notifications")
	g.POST("/global", ah.SendGlobalHandler)
	g.POST("/user/:userId", ah.SendUserHandler)
	g.GET("", ah.GetAllNotificationsHandler)
	g.GET("/analytics", ah.GetAnalyticsHandler)
	return r
}

func TestSendGlobalHandler(t *testing.T) {
	svc := &fakeAdminService{result: models.SendResult{Success: true, Message: admin.MessageSent, Notification: &models.Notification{ID: "n1"}}}
	r := adminRouter(svc)

	w := serve(r, http.MethodPost, "/api/admin/notifications/global", `{"title":"T","message":"M","priority":"high"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Equal(t, models.PriorityHigh, svc.lastInput.Priority)

	w = serve(r, http.MethodPost, "/api/admin/notifications/global", `{"title":"T"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.result = models.SendResult{Success: false, Message: admin.MessageUnauthorized}
	w = serve(r, http.MethodPost, "/api/admin/notifications/global", `{"title":"T","message":"M"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	svc.result = models.SendResult{Success: false, Message: "Failed to send notification: boom"}
	w = serve(r, http.MethodPost, "/api/admin/notifications/global", `{"title":"T","message":"M"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestSendUserHandler(t *testing.T) {
	svc := &fakeAdminService{result: models.SendResult{Success: true, Message: admin.MessageSent}}
	r := adminRouter(svc)

	w := serve(r, http.MethodPost, "/api/admin/notifications/user/u42", `{"title":"T","message":"M"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u42", svc.lastUser)
}

func TestGetAllNotificationsHandler(t *testing.T) {
	svc := &fakeAdminService{}
	r := adminRouter(svc)

	w := serve(r, http.MethodGet, "/api/admin/notifications?limit=25", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 25, svc.limit)
	assert.Contains(t, w.Body.String(), `"notifications":[]`)

	w = serve(r, http.MethodGet, "/api/admin/notifications?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.listErr = errors.New("mongo down")
	w = serve(r, http.MethodGet, "/api/admin/notifications", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	w = serve(r, http.MethodGet, "/api/admin/notifications/analytics", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetAnalyticsHandler(t *testing.T) {
	r := adminRouter(&fakeAdminService{})
	w := serve(r, http.MethodGet, "/api/admin/notifications/analytics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":3`)
}
