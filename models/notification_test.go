package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CoercesUnknownType(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got := Normalize(Notification{ID: "n1", Type: "bogus"}, now)
	assert.Equal(t, TypeSystem, got.Type)

	got = Normalize(Notification{ID: "n2", Type: "achievement"}, now)
	assert.Equal(t, TypeAchievement, got.Type)
}

func TestNormalize_Defaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created := now.Add(-time.Hour)

	got := Normalize(Notification{ID: "n1", Type: TypeReward}, now)
	assert.Equal(t, PriorityMedium, got.Priority)
	assert.Equal(t, now, got.CreatedAt)
	assert.False(t, got.Read)

	got = Normalize(Notification{ID: "n2", Priority: PriorityUrgent, CreatedAt: created}, now)
	assert.Equal(t, PriorityUrgent, got.Priority)
	assert.Equal(t, created, got.CreatedAt)
}

func TestNotification_VisibleTo(t *testing.T) {
	global := Notification{ID: "g"}
	mine := Notification{ID: "m", UserID: "u1"}

	assert.True(t, global.VisibleTo("u1"))
	assert.True(t, global.VisibleTo(""))
	assert.True(t, mine.VisibleTo("u1"))
	assert.False(t, mine.VisibleTo("u2"))
	assert.False(t, mine.VisibleTo(""))
}

func TestNotification_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, Notification{}.Expired(now))
	assert.True(t, Notification{ExpiresAt: &past}.Expired(now))
	assert.False(t, Notification{ExpiresAt: &future}.Expired(now))
}

func TestComputeStats(t *testing.T) {
	var list []Notification
	for i := 0; i < 8; i++ {
		list = append(list, Notification{
			ID:   fmt.Sprintf("n%d", i),
			Type: NotificationTypes[i%3],
			Read: i%2 == 0,
		})
	}

	stats := ComputeStats(list)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 4, stats.Unread)
	assert.Equal(t, 3, stats.ByType[TypeSystem])
	assert.Equal(t, 3, stats.ByType[TypeReward])
	assert.Equal(t, 2, stats.ByType[TypeChallenge])
	require.Len(t, stats.Recent, 5)
	assert.Equal(t, "n0", stats.Recent[0].ID)
	assert.Equal(t, "n4", stats.Recent[4].ID)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Unread)
	assert.Empty(t, stats.Recent)
}

func TestComputeAnalytics(t *testing.T) {
	now := time.Now()
	rows := []Notification{
		{ID: "1", Type: TypeAdmin, Priority: PriorityHigh, Read: true, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Type: TypePersonal, Priority: PriorityMedium, UserID: "u1", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "3", Type: TypeAdmin, Priority: PriorityMedium, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "4", Type: TypeReward, Priority: PriorityLow, UserID: "u2", Read: true, CreatedAt: now.Add(-72 * time.Hour)},
	}

	a := ComputeAnalytics(rows, now)
	assert.Equal(t, 4, a.Total)
	assert.Equal(t, 2, a.Read)
	assert.Equal(t, 2, a.Unread)
	assert.InDelta(t, 0.5, a.ReadRate, 0.0001)
	assert.Equal(t, 2, a.Global)
	assert.Equal(t, 2, a.Targeted)
	assert.Equal(t, 2, a.ByType[TypeAdmin])
	assert.Equal(t, 2, a.ByPriority[PriorityMedium])
	assert.Equal(t, 2, a.Last24h)
}

func TestComputeAnalytics_EmptyHasZeroRate(t *testing.T) {
	a := ComputeAnalytics(nil, time.Now())
	assert.Zero(t, a.ReadRate)
	assert.NotNil(t, a.ByType)
}
