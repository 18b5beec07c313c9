// Package mongostore implements repository.Store on MongoDB, the document
// layout the marketplace records were originally written in.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

const (
	eventsCollection       = "events"
	usersCollection        = "users"
	applicationsCollection = "applications"
)

// Store is a MongoDB-backed repository.Store.
type Store struct {
	client       *mongo.Client
	events       *mongo.Collection
	users        *mongo.Collection
	applications *mongo.Collection
}

var _ repository.Store = (*Store)(nil)

// Open connects to uri, selects database and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:       client,
		events:       db.Collection(eventsCollection),
		users:        db.Collection(usersCollection),
		applications: db.Collection(applicationsCollection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	if _, err := s.events.Indexes().CreateOne(ctx, unique("event_id")); err != nil {
		return fmt.Errorf("create events index: %w", err)
	}
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("user_id"),
		{Keys: bson.D{{Key: "score", Value: -1}, {Key: "user_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}
	if _, err := s.applications.Indexes().CreateOne(ctx, unique("application_id")); err != nil {
		return fmt.Errorf("create applications index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.events.Database().Drop(ctx)
}

func (s *Store) exists(ctx context.Context, coll *mongo.Collection, field, id string) (bool, error) {
	n, err := coll.CountDocuments(ctx, bson.M{field: id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", coll.Name(), id, err)
	}
	return n > 0, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
}

// Events

func (s *Store) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	var e model.Event
	err := s.events.FindOne(ctx, bson.M{"event_id": eventID}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Event{}, notFound("event", eventID)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}
	if len(e.Applications) == 0 {
		e.Applications = nil
	}
	return e, nil
}

func (s *Store) CreateEvent(ctx context.Context, e model.Event) error {
	if e.EventID == "" {
		return fmt.Errorf("event id: %w", repository.ErrInvalidArgument)
	}
	e = e.Clone()
	e.Applications = uniq(e.Applications)
	_, err := s.events.ReplaceOne(ctx, bson.M{"event_id": e.EventID}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("create event %s: %w", e.EventID, err)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	res, err := s.events.DeleteOne(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	if res.DeletedCount == 0 {
		return notFound("event", eventID)
	}
	return nil
}

// MarkEventCompleted filters on completed=false so only one caller matches.
func (s *Store) MarkEventCompleted(ctx context.Context, eventID string) (bool, error) {
	res, err := s.events.UpdateOne(ctx,
		bson.M{"event_id": eventID, "completed": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"completed": true}},
	)
	if err != nil {
		return false, fmt.Errorf("complete event %s: %w", eventID, err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, s.events, "event_id", eventID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, notFound("event", eventID)
	}
	return false, nil
}

func (s *Store) AppendEventApplication(ctx context.Context, eventID, appID string) error {
	res, err := s.events.UpdateOne(ctx,
		bson.M{"event_id": eventID, "completed": bson.M{"$ne": true}},
		bson.M{"$addToSet": bson.M{"applications": appID}},
	)
	if err != nil {
		return fmt.Errorf("append event %s application: %w", eventID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	ok, err := s.exists(ctx, s.events, "event_id", eventID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("event", eventID)
	}
	return fmt.Errorf("event %s: %w", eventID, repository.ErrEventCompleted)
}

// Users

func (s *Store) GetUser(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, notFound("user", userID)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return normalizeUser(u), nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	if u.UserID == "" {
		return fmt.Errorf("user id: %w", repository.ErrInvalidArgument)
	}
	u = u.Clone()
	u.Events = uniq(u.Events)
	u.Applications = uniq(u.Applications)
	_, err := s.users.ReplaceOne(ctx, bson.M{"user_id": u.UserID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.UserID, err)
	}
	return nil
}

// IncrementCounter uses $inc, which treats an absent field as zero.
func (s *Store) IncrementCounter(ctx context.Context, userID string, c model.Counter, delta int64) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("counter %q: %w", c, repository.ErrInvalidArgument)
	}
	var u model.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$inc": bson.M{string(c): delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, notFound("user", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s for user %s: %w", c, userID, err)
	}
	if c == model.CounterScore {
		return u.ScoreValue(), nil
	}
	return u.CompletedEventsValue(), nil
}

func (s *Store) AddUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	return s.updateRefs(ctx, userID, list, bson.M{"$addToSet": bson.M{string(list): id}})
}

func (s *Store) RemoveUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	return s.updateRefs(ctx, userID, list, bson.M{"$pull": bson.M{string(list): id}})
}

func (s *Store) updateRefs(ctx context.Context, userID string, list model.RefList, update bson.M) error {
	if !list.Valid() {
		return fmt.Errorf("list %q: %w", list, repository.ErrInvalidArgument)
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("update user %s %s: %w", userID, list, err)
	}
	if res.MatchedCount == 0 {
		return notFound("user", userID)
	}
	return nil
}

// AddBadges pushes each badge guarded by a filter on its name, so
// concurrent refreshes cannot duplicate a badge.
func (s *Store) AddBadges(ctx context.Context, userID string, badges []model.Badge) ([]model.Badge, error) {
	ok, err := s.exists(ctx, s.users, "user_id", userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("user", userID)
	}
	for _, b := range badges {
		_, err := s.users.UpdateOne(ctx,
			bson.M{"user_id": userID, "badges.name": bson.M{"$ne": b.Name}},
			bson.M{"$push": bson.M{"badges": b}},
		)
		if err != nil {
			return nil, fmt.Errorf("add badge %s for user %s: %w", b.Name, userID, err)
		}
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Badges, nil
}

func unscoredFilter() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"score": bson.M{"$exists": false}},
		bson.M{"score": nil},
		bson.M{"score": 0},
	}}
}

func (s *Store) ListUnscoredUsers(ctx context.Context) ([]string, error) {
	cur, err := s.users.Find(ctx, unscoredFilter(),
		options.Find().SetProjection(bson.M{"user_id": 1}).SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list unscored users: %w", err)
	}
	var rows []struct {
		UserID string `bson:"user_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode unscored users: %w", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	return ids, nil
}

// ResetScoreIfUnscored counts a matched document as written, even when
// the stored value was already 0.
func (s *Store) ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error) {
	filter := unscoredFilter()
	filter["user_id"] = userID
	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"score": int64(0)}})
	if err != nil {
		return false, fmt.Errorf("reset score for user %s: %w", userID, err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, s.users, "user_id", userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, notFound("user", userID)
	}
	return false, nil
}

// TopByScore ranks with an absent score folded to 0 so it ties with 0.
func (s *Store) TopByScore(ctx context.Context, n int) ([]model.User, error) {
	if n < 1 {
		return nil, fmt.Errorf("limit %d: %w", n, repository.ErrInvalidArgument)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.M{"rank_score": bson.M{"$ifNull": bson.A{"$score", 0}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "rank_score", Value: -1}, {Key: "user_id", Value: 1}}}},
		{{Key: "$limit", Value: n}},
	}
	cur, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("rank users: %w", err)
	}
	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode ranked users: %w", err)
	}
	for i := range users {
		users[i] = normalizeUser(users[i])
	}
	return users, nil
}

// Applications

func (s *Store) GetApplication(ctx context.Context, appID string) (model.Application, error) {
	var a model.Application
	err := s.applications.FindOne(ctx, bson.M{"application_id": appID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Application{}, notFound("application", appID)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("get application %s: %w", appID, err)
	}
	return a, nil
}

func (s *Store) CreateApplication(ctx context.Context, a model.Application) error {
	if a.ApplicationID == "" {
		return fmt.Errorf("application id: %w", repository.ErrInvalidArgument)
	}
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	_, err := s.applications.ReplaceOne(ctx, bson.M{"application_id": a.ApplicationID}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("create application %s: %w", a.ApplicationID, err)
	}
	return nil
}

func (s *Store) SetApplicationStatus(ctx context.Context, appID string, st model.Status) error {
	if !st.Valid() {
		return fmt.Errorf("status %q: %w", st, repository.ErrInvalidArgument)
	}
	res, err := s.applications.UpdateOne(ctx, bson.M{"application_id": appID}, bson.M{"$set": bson.M{"status": st}})
	if err != nil {
		return fmt.Errorf("update application %s: %w", appID, err)
	}
	if res.MatchedCount == 0 {
		return notFound("application", appID)
	}
	return nil
}

func (s *Store) DeleteApplication(ctx context.Context, appID string) error {
	res, err := s.applications.DeleteOne(ctx, bson.M{"application_id": appID})
	if err != nil {
		return fmt.Errorf("delete application %s: %w", appID, err)
	}
	if res.DeletedCount == 0 {
		return notFound("application", appID)
	}
	return nil
}

// uniq drops duplicates and never returns nil, so array operators always
// find an array in the stored document.
func uniq(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalizeUser(u model.User) model.User {
	if len(u.Events) == 0 {
		u.Events = nil
	}
	if len(u.Applications) == 0 {
		u.Applications = nil
	}
	if len(u.Badges) == 0 {
		u.Badges = nil
	}
	return u
}
