package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nhle/quality-escalation/internal/model"
)

// Collection names.
const (
	collUsers         = "users"
	collTracked       = "tracked_objects"
	collNotifications = "notifications"
	collReminders     = "reminder_log"
)

// MongoStore implements the Store interface on MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	// transactions is set when the server is a replica set member or
	// mongos. Standalone servers reject multi-document transactions.
	transactions bool
}

var _ Store = (*MongoStore)(nil)

type userDoc struct {
	ID    string `bson:"_id"`
	Email string `bson:"email"`
	Name  string `bson:"name"`
}

type trackedDoc struct {
	ID            string     `bson:"_id"`
	Kind          string     `bson:"kind"`
	Title         string     `bson:"title"`
	DueDate       *time.Time `bson:"dueDate,omitempty"`
	Status        string     `bson:"status"`
	ResponsibleID string     `bson:"responsibleId"`
	CreatedAt     time.Time  `bson:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt"`
}

type notificationDoc struct {
	ID              string     `bson:"_id"`
	UserID          string     `bson:"userId"`
	TargetObjectID  *string    `bson:"targetObjectId,omitempty"`
	Type            string     `bson:"type"`
	Message         string     `bson:"message"`
	Read            bool       `bson:"read"`
	CreatedAt       time.Time  `bson:"createdAt"`
	LastEmailSentAt *time.Time `bson:"lastEmailSentAt,omitempty"`
}

type reminderDoc struct {
	UserID     string    `bson:"_id"`
	LastSentAt time.Time `bson:"lastSentAt"`
}

// NewMongoStore connects to uri, pings the server and ensures the indexes
// the engine relies on, including the unique dedup index.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo connection uri is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(20).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database)}
	s.transactions = supportsTransactions(ctx, client)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// supportsTransactions asks the server whether it is part of a replica set
// or a sharded cluster.
func supportsTransactions(ctx context.Context, client *mongo.Client) bool {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return false
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid"
}

// Transactional reports whether batch updates run inside a transaction.
func (s *MongoStore) Transactional() bool {
	return s.transactions
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collNotifications).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "targetObjectId", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().
				SetName("dedup_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"targetObjectId": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating notification indexes: %w", err)
	}

	_, err = s.db.Collection(collTracked).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "dueDate", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating tracked object indexes: %w", err)
	}

	_, err = s.db.Collection(collUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetCollation(&options.Collation{Locale: "en", Strength: 2}),
	})
	if err != nil {
		return fmt.Errorf("creating user indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// UpsertTrackedObject inserts or replaces a tracked object.
func (s *MongoStore) UpsertTrackedObject(ctx context.Context, obj model.TrackedObject) error {
	if strings.TrimSpace(obj.Title) == "" {
		return fmt.Errorf("tracked object title must not be empty")
	}
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}
	doc := trackedDoc{
		ID:            obj.ID,
		Kind:          string(obj.Kind),
		Title:         obj.Title,
		DueDate:       obj.DueDate,
		Status:        obj.Status,
		ResponsibleID: obj.ResponsibleID,
		CreatedAt:     obj.CreatedAt.UTC(),
		UpdatedAt:     now,
	}
	_, err := s.db.Collection(collTracked).ReplaceOne(ctx,
		bson.M{"_id": obj.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting tracked object %s: %w", obj.ID, err)
	}
	return nil
}

// GetTrackedObject retrieves a tracked object by ID.
func (s *MongoStore) GetTrackedObject(ctx context.Context, id string) (*model.TrackedObject, error) {
	var doc trackedDoc
	err := s.db.Collection(collTracked).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tracked object %s: %w", id, err)
	}
	obj := doc.model()
	return &obj, nil
}

// ListTrackedObjects runs the whole filter server-side.
func (s *MongoStore) ListTrackedObjects(ctx context.Context, filter TrackedFilter) ([]model.TrackedObject, error) {
	q := bson.M{}
	if filter.Kind != "" {
		q["kind"] = string(filter.Kind)
	}
	status := bson.M{}
	if len(filter.Statuses) > 0 {
		status["$in"] = filter.Statuses
	}
	if len(filter.ExcludeStatuses) > 0 {
		status["$nin"] = filter.ExcludeStatuses
	}
	if len(status) > 0 {
		q["status"] = status
	}
	if filter.RequireResponsible {
		q["responsibleId"] = bson.M{"$nin": bson.A{"", nil}}
	}
	due := bson.M{}
	if filter.DueBefore != nil {
		due["$lt"] = filter.DueBefore.UTC()
	}
	if filter.DueFrom != nil {
		due["$gte"] = filter.DueFrom.UTC()
	}
	if filter.DueTo != nil {
		due["$lte"] = filter.DueTo.UTC()
	}
	if len(due) > 0 {
		q["dueDate"] = due
	}

	cur, err := s.db.Collection(collTracked).Find(ctx, q,
		options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying tracked objects: %w", err)
	}
	var docs []trackedDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding tracked objects: %w", err)
	}

	objects := make([]model.TrackedObject, 0, len(docs))
	for _, d := range docs {
		objects = append(objects, d.model())
	}
	return objects, nil
}

// UpdateTrackedStatus moves an object from one status to another.
func (s *MongoStore) UpdateTrackedStatus(ctx context.Context, id, from, to string) error {
	res, err := s.db.Collection(collTracked).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("tracked object %s not in status %s: %w", id, from, ErrStatusChanged)
	}
	return nil
}

// FindNotification returns the notification under the dedup key.
func (s *MongoStore) FindNotification(ctx context.Context, objectID string, typ model.NotificationType) (*model.Notification, error) {
	return s.findOneNotification(ctx, bson.M{"targetObjectId": objectID, "type": string(typ)})
}

// GetNotification retrieves a notification by ID.
func (s *MongoStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	return s.findOneNotification(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findOneNotification(ctx context.Context, q bson.M) (*model.Notification, error) {
	var doc notificationDoc
	err := s.db.Collection(collNotifications).FindOne(ctx, q).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding notification: %w", err)
	}
	n := doc.model()
	return &n, nil
}

// CreateNotification inserts a notification; the unique dedup index turns
// a concurrent second insert into ErrDuplicate.
func (s *MongoStore) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	_, err := s.db.Collection(collNotifications).InsertOne(ctx, notificationDoc{
		ID:              n.ID,
		UserID:          n.UserID,
		TargetObjectID:  n.TargetObjectID,
		Type:            string(n.Type),
		Message:         n.Message,
		Read:            n.Read,
		CreatedAt:       n.CreatedAt,
		LastEmailSentAt: n.LastEmailSentAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return model.Notification{}, fmt.Errorf("creating notification: %w", ErrDuplicate)
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("creating notification: %w", err)
	}
	return n, nil
}

// ListNotifications retrieves notifications matching the filter, oldest first.
func (s *MongoStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error) {
	q := bson.M{}
	if filter.UserID != "" {
		q["userId"] = filter.UserID
	}
	if filter.Type != "" {
		q["type"] = string(filter.Type)
	}
	if filter.UnreadOnly {
		q["read"] = false
	}

	cur, err := s.db.Collection(collNotifications).Find(ctx, q,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// ListUnreadByUser retrieves the unread notifications of one user.
func (s *MongoStore) ListUnreadByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.ListNotifications(ctx, NotificationFilter{UserID: userID, UnreadOnly: true})
}

// MarkEmailSent records a dispatched email.
func (s *MongoStore) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	return s.updateNotification(ctx, id, bson.M{"lastEmailSentAt": at.UTC()})
}

// MarkNotificationRead acknowledges a notification.
func (s *MongoStore) MarkNotificationRead(ctx context.Context, id string) error {
	return s.updateNotification(ctx, id, bson.M{"read": true})
}

func (s *MongoStore) updateNotification(ctx context.Context, id string, set bson.M) error {
	res, err := s.db.Collection(collNotifications).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating notification %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkNotificationsRead acknowledges a batch. On a replica set or mongos
// the update runs in a transaction and is rolled back unless every id
// matched. A standalone server has no multi-document transactions, so
// there the batch is a single UpdateMany that can stop part way on a
// write error; the missing-id check still runs first.
func (s *MongoStore) MarkNotificationsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if !s.transactions {
		return s.markRead(ctx, ids)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, s.markRead(sc, ids)
	})
	return err
}

func (s *MongoStore) markRead(ctx context.Context, ids []string) error {
	coll := s.db.Collection(collNotifications)
	query := bson.M{"_id": bson.M{"$in": ids}}
	want := int64(countDistinct(ids))

	if !s.transactions {
		found, err := coll.CountDocuments(ctx, query)
		if err != nil {
			return fmt.Errorf("counting notifications: %w", err)
		}
		if found != want {
			return fmt.Errorf("marking %d notifications as read, %d exist: %w", want, found, ErrNotFound)
		}
	}

	res, err := coll.UpdateMany(ctx, query, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("marking %d notifications as read: %w", len(ids), err)
	}
	if res.MatchedCount != want {
		return fmt.Errorf("marking %d notifications as read, %d matched: %w", want, res.MatchedCount, ErrNotFound)
	}
	return nil
}

// DeleteNotification removes a notification.
func (s *MongoStore) DeleteNotification(ctx context.Context, id string) error {
	res, err := s.db.Collection(collNotifications).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertUser inserts or replaces a directory entry.
func (s *MongoStore) UpsertUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := s.db.Collection(collUsers).ReplaceOne(ctx, bson.M{"_id": u.ID},
		userDoc{ID: u.ID, Email: strings.TrimSpace(u.Email), Name: u.Name},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"_id": id}, nil)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.TrimSpace(email)},
		options.FindOne().SetCollation(&options.Collation{Locale: "en", Strength: 2}))
}

func (s *MongoStore) findUser(ctx context.Context, q bson.M, opts *options.FindOneOptions) (*model.User, error) {
	var findOpts []*options.FindOneOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	var doc userDoc
	err := s.db.Collection(collUsers).FindOne(ctx, q, findOpts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &model.User{ID: doc.ID, Email: doc.Email, Name: doc.Name}, nil
}

// LastReminderAt returns when a manual reminder was last sent to userID.
func (s *MongoStore) LastReminderAt(ctx context.Context, userID string) (*time.Time, error) {
	var doc reminderDoc
	err := s.db.Collection(collReminders).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reminder log for %s: %w", userID, err)
	}
	return &doc.LastSentAt, nil
}

// RecordReminder stores the time of the latest manual reminder to userID.
func (s *MongoStore) RecordReminder(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.Collection(collReminders).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"lastSentAt": at.UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("recording reminder for %s: %w", userID, err)
	}
	return nil
}

func (d trackedDoc) model() model.TrackedObject {
	return model.TrackedObject{
		ID:            d.ID,
		Kind:          model.TrackedKind(d.Kind),
		Title:         d.Title,
		DueDate:       d.DueDate,
		Status:        d.Status,
		ResponsibleID: d.ResponsibleID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (d notificationDoc) model() model.Notification {
	return model.Notification{
		ID:              d.ID,
		UserID:          d.UserID,
		TargetObjectID:  d.TargetObjectID,
		Type:            model.NotificationType(d.Type),
		Message:         d.Message,
		Read:            d.Read,
		CreatedAt:       d.CreatedAt,
		LastEmailSentAt: d.LastEmailSentAt,
	}
}
