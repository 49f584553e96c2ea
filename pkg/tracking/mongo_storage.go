package tracking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// defaultCollection is the collection name used unless overridden.
const defaultCollection = "notifications"

// MongoStorage is the MongoDB-backed implementation of the Storage interface.
//
// It holds no client-side locks: every transition is expressed as a single
// conditional document update ($exists guards for the first-write-wins
// fields, $min/$max merges for timestamps), so concurrent and out-of-order
// writers converge without coordination.
type MongoStorage struct {
	coll *mongo.Collection
}

// MongoStorageOption configures a MongoStorage.
type MongoStorageOption func(*mongoStorageConfig)

type mongoStorageConfig struct {
	collection string
}

// WithCollection overrides the collection name.
func WithCollection(name string) MongoStorageOption {
	return func(c *mongoStorageConfig) {
		if name != "" {
			c.collection = name
		}
	}
}

// NewMongoStorage creates a notification storage on top of the given database.
func NewMongoStorage(db *mongo.Database, opts ...MongoStorageOption) *MongoStorage {
	cfg := &mongoStorageConfig{collection: defaultCollection}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MongoStorage{coll: db.Collection(cfg.collection)}
}

// EnsureIndexes creates the indexes the store relies on: the query index, the
// retention-sweep index and, when a retention period is configured, a TTL
// index on the creation time. The unique index on _id comes with the
// collection and surfaces duplicate inserts as conflicts.
func (s *MongoStorage) EnsureIndexes(ctx context.Context, retentionPeriod time.Duration) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "app_id", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "updated", Value: 1},
				{Key: "deleted", Value: 1},
				{Key: "created", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "app_id", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "created", Value: 1},
			},
		},
	}
	if retentionPeriod > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "created", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retentionPeriod / time.Second)),
		})
	}

	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("tracking: create indexes: %w", err)
	}
	return nil
}

func (s *MongoStorage) Insert(ctx context.Context, n Notification) error {
	if n.ID == "" {
		return ErrIDRequired
	}

	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("tracking: insert notification: %w", err)
	}
	return nil
}

func (s *MongoStorage) Find(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tracking: find notification: %w", err)
	}
	return &n, nil
}

func (s *MongoStorage) Delete(ctx context.Context, id string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"deleted": true},
			"$max": bson.M{"updated": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("tracking: delete notification: %w", err)
	}
	return nil
}

func (s *MongoStorage) Query(ctx context.Context, appID, userID string, q Query) ([]Notification, int64, error) {
	filter := queryFilter(appID, userID, q)

	findOpts := options.Find().SetSort(bson.D{{Key: "created", Value: -1}})
	if q.Offset > 0 {
		findOpts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		findOpts.SetLimit(int64(q.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("tracking: query notifications: %w", err)
	}

	var items []Notification
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("tracking: decode notifications: %w", err)
	}

	// A short page proves there are no further matches, so the total is
	// known without a second collection scan.
	total, exact := inferredTotal(q.Offset, len(items), q.Limit)
	if !exact {
		total, err = s.coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, 0, fmt.Errorf("tracking: count notifications: %w", err)
		}
	}
	return items, total, nil
}

func (s *MongoStorage) TrackDelivered(ctx context.Context, ids []string, handle HandledInfo) error {
	if len(ids) == 0 {
		return nil
	}
	return s.trackFirst(ctx, ids, handle, "first_delivered")
}

func (s *MongoStorage) TrackSeen(ctx context.Context, ids []string, handle HandledInfo) error {
	if len(ids) == 0 {
		return nil
	}
	// Seeing implies delivery.
	if err := s.trackFirst(ctx, ids, handle, "first_delivered"); err != nil {
		return err
	}
	return s.trackFirst(ctx, ids, handle, "first_seen")
}

func (s *MongoStorage) TrackConfirmed(ctx context.Context, id string, handle HandledInfo) (*Notification, error) {
	if err := s.TrackSeen(ctx, []string{id}, handle); err != nil {
		return nil, err
	}

	var n Notification
	err := s.coll.FindOneAndUpdate(ctx,
		confirmFilter(id),
		bson.M{
			"$set": bson.M{"first_confirmed": handle},
			"$max": bson.M{"updated": handle.Timestamp},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if err == nil {
		return &n, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("tracking: confirm notification: %w", err)
	}

	// The guard did not match: either already confirmed, not confirmable,
	// or gone. Hand back the current state so the caller can tell which.
	return s.Find(ctx, id)
}

func (s *MongoStorage) WriteChannelStatus(ctx context.Context, updates []ChannelStatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	models, err := channelStatusModels(updates)
	if err != nil {
		return err
	}

	// Unordered: one notification's failure must not block the others.
	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("tracking: write channel status batch: %w", err)
	}
	return nil
}

func (s *MongoStorage) IsConfirmedOrHandled(ctx context.Context, id, channel, configKey string) (bool, error) {
	statusPath, err := statusFieldPath(channel, configKey, "status")
	if err != nil {
		return false, err
	}

	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"first_confirmed": bson.M{"$exists": true}},
			bson.M{statusPath: SendStatusHandled},
		},
	}
	count, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("tracking: check confirmed or handled: %w", err)
	}
	return count > 0, nil
}

func (s *MongoStorage) DeleteOldest(ctx context.Context, appID, userID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	filter := bson.M{"app_id": appID, "user_id": userID}

	var deleted int64
	for {
		findOpts := options.Find().
			SetSort(bson.D{{Key: "created", Value: -1}}).
			SetSkip(int64(keep)).
			SetLimit(int64(cleanupBatchSize)).
			SetProjection(bson.M{"_id": 1})

		cur, err := s.coll.Find(ctx, filter, findOpts)
		if err != nil {
			return deleted, fmt.Errorf("tracking: find retention candidates: %w", err)
		}

		var docs []struct {
			ID string `bson:"_id"`
		}
		if err := cur.All(ctx, &docs); err != nil {
			return deleted, fmt.Errorf("tracking: decode retention candidates: %w", err)
		}
		if len(docs) == 0 {
			return deleted, nil
		}

		ids := make([]string, len(docs))
		for i, doc := range docs {
			ids[i] = doc.ID
		}
		res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return deleted, fmt.Errorf("tracking: delete retention batch: %w", err)
		}
		deleted += res.DeletedCount

		if len(docs) < cleanupBatchSize {
			return deleted, nil
		}
	}
}

// trackFirst performs one first-occurrence transition: a set-if-absent write
// on the record-level field plus a min merge on the channel-level timestamp.
// Both are independent conditional updates; whichever concurrent writer wins
// the race makes the others silent no-ops.
func (s *MongoStorage) trackFirst(ctx context.Context, ids []string, handle HandledInfo, field string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{
			"_id": bson.M{"$in": ids},
			field: bson.M{"$exists": false},
		},
		bson.M{
			"$set": bson.M{field: handle},
			"$max": bson.M{"updated": handle.Timestamp},
		},
	)
	if err != nil {
		return fmt.Errorf("tracking: track %s: %w", field, err)
	}

	if handle.Channel == "" {
		return nil
	}

	// The channel timestamp is only lowered when the notification was
	// created with this channel; a late event for an unknown channel must
	// not create one.
	guard, err := channelPath(handle.Channel)
	if err != nil {
		return err
	}
	path, err := channelFieldPath(handle.Channel, field)
	if err != nil {
		return err
	}
	_, err = s.coll.UpdateMany(ctx,
		bson.M{
			"_id": bson.M{"$in": ids},
			guard: bson.M{"$exists": true},
		},
		bson.M{
			"$min": bson.M{path: handle.Timestamp},
			"$max": bson.M{"updated": handle.Timestamp},
		},
	)
	if err != nil {
		return fmt.Errorf("tracking: track channel %s: %w", field, err)
	}
	return nil
}

// queryFilter translates a Query into a store predicate. Free-text input is
// quoted so it matches as a literal substring, never as a caller-controlled
// pattern.
func queryFilter(appID, userID string, q Query) bson.M {
	filter := bson.M{
		"app_id":  appID,
		"user_id": userID,
	}
	switch q.Scope {
	case ScopeDeleted:
		filter["deleted"] = true
	case ScopeNonDeleted:
		filter["deleted"] = false
	}
	if !q.After.IsZero() {
		filter["updated"] = bson.M{"$gte": q.After}
	}
	if q.Search != "" {
		filter["formatting.subject"] = bson.Regex{
			Pattern: regexp.QuoteMeta(q.Search),
			Options: "i",
		}
	}
	return filter
}

// confirmFilter guards the confirm transition: only explicit-mode,
// not-yet-confirmed notifications match.
func confirmFilter(id string) bson.M {
	return bson.M{
		"_id":                     id,
		"formatting.confirm_mode": ConfirmModeExplicit,
		"first_confirmed":         bson.M{"$exists": false},
	}
}

// channelStatusModels groups batch updates by notification and builds one
// combined update per notification, so every configuration written for the
// same document lands in a single atomic write.
func channelStatusModels(updates []ChannelStatusUpdate) ([]mongo.WriteModel, error) {
	sets := make(map[string]bson.M, len(updates))
	latest := make(map[string]time.Time, len(updates))
	order := make([]string, 0, len(updates))

	for _, u := range updates {
		set, exists := sets[u.ID]
		if !exists {
			set = bson.M{}
			sets[u.ID] = set
			order = append(order, u.ID)
		}

		for field, value := range map[string]any{
			"detail":      u.Info.Detail,
			"status":      u.Info.Status,
			"last_update": u.Info.LastUpdate,
		} {
			path, err := statusFieldPath(u.Channel, u.ConfigKey, field)
			if err != nil {
				return nil, err
			}
			set[path] = value
		}
		if u.Info.LastUpdate.After(latest[u.ID]) {
			latest[u.ID] = u.Info.LastUpdate
		}
	}

	models := make([]mongo.WriteModel, 0, len(order))
	for _, id := range order {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{
				"$set": sets[id],
				"$max": bson.M{"updated": latest[id]},
			}))
	}
	return models, nil
}
