package notificationRepo

import (
	"context"
	"fmt"
	"time"

	"xquests/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding notification rows.
const CollectionName = "notifications"

// MongoNotificationRepo implements NotificationRepository using MongoDB.
type MongoNotificationRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoNotificationRepo creates the repository and ensures its indexes.
func NewMongoNotificationRepo(db *mongo.Database) *MongoNotificationRepo {
	repo := &MongoNotificationRepo{
		coll: db.Collection(CollectionName),
		now:  time.Now,
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create notification indexes: %v\n", err)
	}
	return repo
}

// newContext derives a bounded context from the caller's.
func newContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// visibleToFilter matches rows addressed to userID and global rows. A null
// match in Mongo also matches documents missing the field.
func visibleToFilter(userID string) bson.M {
	if userID == "" {
		return bson.M{"userId": nil}
	}
	return bson.M{"userId": bson.M{"$in": bson.A{userID, nil}}}
}

func buildListFilter(f ListFilter) bson.M {
	if f.AllUsers {
		return bson.M{}
	}
	return visibleToFilter(f.UserID)
}

// List returns rows matching filter ordered by creation time descending.
func (r *MongoNotificationRepo) List(ctx context.Context, filter ListFilter) ([]models.Notification, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := r.coll.Find(ctx, buildListFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	now := r.now()
	rows := make([]models.Notification, 0)
	for cursor.Next(ctx) {
		var n models.Notification
		if err := cursor.Decode(&n); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		rows = append(rows, models.Normalize(n, now))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return rows, nil
}

// Insert stores a new notification row and returns it as persisted.
func (r *MongoNotificationRepo) Insert(ctx context.Context, n models.Notification) (*models.Notification, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n = models.Normalize(n, r.now())

	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return &n, nil
}

// rowFilter matches the row with id only when it is visible to userID.
func rowFilter(userID, id string) bson.M {
	filter := visibleToFilter(userID)
	filter["id"] = id
	return filter
}

// MarkRead sets read=true on the row with id. Rows addressed to another user
// are reported as not found.
func (r *MongoNotificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.UpdateOne(ctx, rowFilter(userID, id), bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotificationNotFound)
	}
	return nil
}

// MarkAllRead sets read=true on every unread row visible to userID.
func (r *MongoNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	filter := visibleToFilter(userID)
	filter["read"] = false

	result, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read for %q: %w", userID, err)
	}
	return result.ModifiedCount, nil
}

// Delete removes the row with id if it is visible to userID.
func (r *MongoNotificationRepo) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.DeleteOne(ctx, rowFilter(userID, id))
	if err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotificationNotFound)
	}
	return nil
}

// DeleteExpired removes every row whose expiresAt has passed.
func (r *MongoNotificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := newContext(ctx, 30*time.Second)
	defer cancel()

	result, err := r.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	return result.DeletedCount, nil
}
