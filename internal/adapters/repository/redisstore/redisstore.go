// Package redisstore implements repository.Store on Redis. Every mutation
// that must be conditional or atomic runs as a Lua script.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// Config configures the Redis backend.
type Config struct {
	// Addr is the Redis server address, e.g. "localhost:6379".
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, e.g. "volunteer:".
	Prefix string
	// Timeout bounds each store call.
	Timeout  time.Duration
	PoolSize int
}

// DefaultConfig returns defaults for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:     addr,
		Prefix:   "volunteer:",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// Store is a Redis-backed repository.Store.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ repository.Store = (*Store)(nil)

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, cfg.Prefix, cfg.Timeout), nil
}

// clientOptions maps cfg onto go-redis options. The CLIENT SETINFO
// handshake is disabled because servers before 7.2 reject it.
func clientOptions(cfg Config) *redis.Options {
	return &redis.Options{
		Addr:             cfg.Addr,
		Password:         cfg.Password,
		DB:               cfg.DB,
		PoolSize:         cfg.PoolSize,
		ReadTimeout:      cfg.Timeout,
		WriteTimeout:     cfg.Timeout,
		DisableIndentity: true,
	}
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{client: client, prefix: prefix, timeout: timeout}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) eventKey(id string) string     { return s.prefix + "event:" + id }
func (s *Store) eventAppsKey(id string) string { return s.prefix + "event:" + id + ":applications" }
func (s *Store) userKey(id string) string      { return s.prefix + "user:" + id }
func (s *Store) badgeNamesKey(id string) string {
	return s.prefix + "user:" + id + ":badges"
}
func (s *Store) badgeDescKey(id string) string {
	return s.prefix + "user:" + id + ":badge_descriptions"
}
func (s *Store) refKey(id string, list model.RefList) string {
	return s.prefix + "user:" + id + ":" + string(list)
}
func (s *Store) appKey(id string) string { return s.prefix + "application:" + id }
func (s *Store) rankingKey() string      { return s.prefix + "ranking:score" }

// Events

// GetEvent reads the event hash and its application list.
func (s *Store) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	fields := pipe.HGetAll(ctx, s.eventKey(eventID))
	apps := pipe.LRange(ctx, s.eventAppsKey(eventID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}
	h := fields.Val()
	if len(h) == 0 {
		return model.Event{}, fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
	}
	var e model.Event
	if err := json.Unmarshal([]byte(h["doc"]), &e); err != nil {
		return model.Event{}, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	e.Completed = h["completed"] == "1"
	if v := apps.Val(); len(v) > 0 {
		e.Applications = v
	}
	return e, nil
}

// CreateEvent replaces the event atomically.
func (s *Store) CreateEvent(ctx context.Context, e model.Event) error {
	if e.EventID == "" {
		return fmt.Errorf("event id: %w", repository.ErrInvalidArgument)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	apps := dedupe(e.Applications)
	completed := "0"
	if e.Completed {
		completed = "1"
	}
	e.Applications, e.Completed = nil, false
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.EventID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.eventKey(e.EventID), s.eventAppsKey(e.EventID))
		pipe.HSet(ctx, s.eventKey(e.EventID), "doc", doc, "completed", completed)
		if len(apps) > 0 {
			pipe.RPush(ctx, s.eventAppsKey(e.EventID), toAny(apps)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create event %s: %w", e.EventID, err)
	}
	return nil
}

// DeleteEvent removes the event keys.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.eventKey(eventID))
		pipe.Del(ctx, s.eventAppsKey(eventID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
	}
	return nil
}

// MarkEventCompleted flips the completed field in a script.
func (s *Store) MarkEventCompleted(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := markCompletedScript.Run(ctx, s.client, []string{s.eventKey(eventID)}).Int()
	if err != nil {
		return false, fmt.Errorf("complete event %s: %w", eventID, err)
	}
	switch res {
	case -1:
		return false, fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// AppendEventApplication appends while the event is open.
func (s *Store) AppendEventApplication(ctx context.Context, eventID, appID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := appendApplicationScript.Run(ctx, s.client,
		[]string{s.eventKey(eventID), s.eventAppsKey(eventID)}, appID).Int()
	if err != nil {
		return fmt.Errorf("append event %s application: %w", eventID, err)
	}
	switch res {
	case -1:
		return fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
	case 0:
		return fmt.Errorf("event %s: %w", eventID, repository.ErrEventCompleted)
	}
	return nil
}

// Users

// GetUser reads the user hash, reference lists and badges in one pipeline.
func (s *Store) GetUser(ctx context.Context, userID string) (model.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	fields := pipe.HGetAll(ctx, s.userKey(userID))
	events := pipe.LRange(ctx, s.refKey(userID, model.RefEvents), 0, -1)
	apps := pipe.LRange(ctx, s.refKey(userID, model.RefApplications), 0, -1)
	names := pipe.LRange(ctx, s.badgeNamesKey(userID), 0, -1)
	descs := pipe.HGetAll(ctx, s.badgeDescKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}

	h := fields.Val()
	if len(h) == 0 {
		return model.User{}, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	var u model.User
	if err := json.Unmarshal([]byte(h["doc"]), &u); err != nil {
		return model.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	var err error
	if u.Score, err = optionalInt(h, string(model.CounterScore)); err != nil {
		return model.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	if u.CompletedEvents, err = optionalInt(h, string(model.CounterCompletedEvents)); err != nil {
		return model.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	if v := events.Val(); len(v) > 0 {
		u.Events = v
	}
	if v := apps.Val(); len(v) > 0 {
		u.Applications = v
	}
	u.Badges = joinBadges(names.Val(), descs.Val())
	return u, nil
}

// CreateUser replaces the user and its ranking entry atomically.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	if u.UserID == "" {
		return fmt.Errorf("user id: %w", repository.ErrInvalidArgument)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id := u.UserID
	fields := []any{}
	if u.Score != nil {
		fields = append(fields, string(model.CounterScore), *u.Score)
	}
	if u.CompletedEvents != nil {
		fields = append(fields, string(model.CounterCompletedEvents), *u.CompletedEvents)
	}
	score := u.ScoreValue()
	events, apps, badges := dedupe(u.Events), dedupe(u.Applications), u.Badges

	doc := u
	doc.Score, doc.CompletedEvents, doc.Badges, doc.Events, doc.Applications = nil, nil, nil, nil, nil
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", id, err)
	}
	fields = append(fields, "doc", raw)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.userKey(id), s.refKey(id, model.RefEvents), s.refKey(id, model.RefApplications),
			s.badgeNamesKey(id), s.badgeDescKey(id))
		pipe.HSet(ctx, s.userKey(id), fields...)
		if len(events) > 0 {
			pipe.RPush(ctx, s.refKey(id, model.RefEvents), toAny(events)...)
		}
		if len(apps) > 0 {
			pipe.RPush(ctx, s.refKey(id, model.RefApplications), toAny(apps)...)
		}
		seen := make(map[string]struct{}, len(badges))
		for _, b := range badges {
			if _, dup := seen[b.Name]; dup {
				continue
			}
			seen[b.Name] = struct{}{}
			pipe.RPush(ctx, s.badgeNamesKey(id), b.Name)
			pipe.HSet(ctx, s.badgeDescKey(id), b.Name, b.Description)
		}
		pipe.ZAdd(ctx, s.rankingKey(), redis.Z{Score: float64(score), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", id, err)
	}
	return nil
}

// IncrementCounter runs HINCRBY and keeps the score ranking in step.
func (s *Store) IncrementCounter(ctx context.Context, userID string, c model.Counter, delta int64) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("counter %q: %w", c, repository.ErrInvalidArgument)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rank := "0"
	if c == model.CounterScore {
		rank = "1"
	}
	res, err := incrementScript.Run(ctx, s.client,
		[]string{s.userKey(userID), s.rankingKey()}, string(c), delta, userID, rank).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("increment %s for user %s: %w", c, userID, err)
	}
	if len(res) != 2 || res[0] == 0 {
		return 0, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	return res[1], nil
}

// AddUserRef appends id unless present.
func (s *Store) AddUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	return s.runRef(ctx, addRefScript, userID, list, id)
}

// RemoveUserRef removes every occurrence of id.
func (s *Store) RemoveUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	return s.runRef(ctx, removeRefScript, userID, list, id)
}

func (s *Store) runRef(ctx context.Context, script *redis.Script, userID string, list model.RefList, id string) error {
	if !list.Valid() {
		return fmt.Errorf("list %q: %w", list, repository.ErrInvalidArgument)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := script.Run(ctx, s.client, []string{s.userKey(userID), s.refKey(userID, list)}, id).Int()
	if err != nil {
		return fmt.Errorf("update user %s %s: %w", userID, list, err)
	}
	if res == -1 {
		return fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	return nil
}

// AddBadges unions badges by name and returns the resulting set.
func (s *Store) AddBadges(ctx context.Context, userID string, badges []model.Badge) ([]model.Badge, error) {
	args := make([]any, 0, 2*len(badges))
	for _, b := range badges {
		args = append(args, b.Name, b.Description)
	}

	runCtx, cancel := s.withTimeout(ctx)
	res, err := addBadgesScript.Run(runCtx, s.client,
		[]string{s.userKey(userID), s.badgeNamesKey(userID), s.badgeDescKey(userID)}, args...).Int()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("add badges for user %s: %w", userID, err)
	}
	if res == -1 {
		return nil, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Badges, nil
}

// ListUnscoredUsers reads members ranked exactly at zero. Users without a
// score field are ranked at zero from creation.
func (s *Store) ListUnscoredUsers(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.ZRangeByScore(ctx, s.rankingKey(), &redis.ZRangeBy{Min: "0", Max: "0"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list unscored users: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetScoreIfUnscored writes score=0 in a script guarded by the predicate.
func (s *Store) ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := resetScoreScript.Run(ctx, s.client, []string{s.userKey(userID), s.rankingKey()}, userID).Int()
	if err != nil {
		return false, fmt.Errorf("reset score for user %s: %w", userID, err)
	}
	switch res {
	case -1:
		return false, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// TopByScore takes the top n from the ranking, then breaks ties at the
// cutoff score by user id ascending.
func (s *Store) TopByScore(ctx context.Context, n int) ([]model.User, error) {
	if n < 1 {
		return nil, fmt.Errorf("limit %d: %w", n, repository.ErrInvalidArgument)
	}
	ids, err := s.rankedIDs(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUser(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) rankedIDs(ctx context.Context, n int) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	top, err := s.client.ZRevRangeWithScores(ctx, s.rankingKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("rank users: %w", err)
	}
	if len(top) < n {
		sortRanked(top)
		return members(top), nil
	}

	cutoff := strconv.FormatFloat(top[n-1].Score, 'f', -1, 64)
	above, err := s.client.ZRevRangeByScoreWithScores(ctx, s.rankingKey(),
		&redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("rank users: %w", err)
	}
	sortRanked(above)
	ties, err := s.client.ZRangeByScore(ctx, s.rankingKey(), &redis.ZRangeBy{Min: cutoff, Max: cutoff}).Result()
	if err != nil {
		return nil, fmt.Errorf("rank users: %w", err)
	}
	sort.Strings(ties)

	ids := members(above)
	if need := n - len(ids); need < len(ties) {
		ties = ties[:need]
	}
	return append(ids, ties...), nil
}

// Applications

// GetApplication reads the application hash.
func (s *Store) GetApplication(ctx context.Context, appID string) (model.Application, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	h, err := s.client.HGetAll(ctx, s.appKey(appID)).Result()
	if err != nil {
		return model.Application{}, fmt.Errorf("get application %s: %w", appID, err)
	}
	if len(h) == 0 {
		return model.Application{}, fmt.Errorf("application %s: %w", appID, repository.ErrNotFound)
	}
	return model.Application{
		ApplicationID:   appID,
		ApplicantUserID: h["applicant_user_id"],
		EventID:         h["event_id"],
		Status:          model.Status(h["status"]),
	}, nil
}

// CreateApplication writes the application hash.
func (s *Store) CreateApplication(ctx context.Context, a model.Application) error {
	if a.ApplicationID == "" {
		return fmt.Errorf("application id: %w", repository.ErrInvalidArgument)
	}
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.client.HSet(ctx, s.appKey(a.ApplicationID),
		"applicant_user_id", a.ApplicantUserID,
		"event_id", a.EventID,
		"status", string(a.Status),
	).Err()
	if err != nil {
		return fmt.Errorf("create application %s: %w", a.ApplicationID, err)
	}
	return nil
}

// SetApplicationStatus updates status if the application exists.
func (s *Store) SetApplicationStatus(ctx context.Context, appID string, st model.Status) error {
	if !st.Valid() {
		return fmt.Errorf("status %q: %w", st, repository.ErrInvalidArgument)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := setStatusScript.Run(ctx, s.client, []string{s.appKey(appID)}, string(st)).Int()
	if err != nil {
		return fmt.Errorf("update application %s: %w", appID, err)
	}
	if res == -1 {
		return fmt.Errorf("application %s: %w", appID, repository.ErrNotFound)
	}
	return nil
}

// DeleteApplication removes the application hash.
func (s *Store) DeleteApplication(ctx context.Context, appID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, s.appKey(appID)).Result()
	if err != nil {
		return fmt.Errorf("delete application %s: %w", appID, err)
	}
	if n == 0 {
		return fmt.Errorf("application %s: %w", appID, repository.ErrNotFound)
	}
	return nil
}

func optionalInt(h map[string]string, field string) (*int64, error) {
	raw, ok := h[field]
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}
	return &v, nil
}

func joinBadges(names []string, descs map[string]string) []model.Badge {
	if len(names) == 0 {
		return nil
	}
	out := make([]model.Badge, len(names))
	for i, name := range names {
		out[i] = model.Badge{Name: name, Description: descs[name]}
	}
	return out
}

func sortRanked(zs []redis.Z) {
	sort.SliceStable(zs, func(i, j int) bool {
		if zs[i].Score != zs[j].Score {
			return zs[i].Score > zs[j].Score
		}
		return member(zs[i]) < member(zs[j])
	})
}

func member(z redis.Z) string {
	if s, ok := z.Member.(string); ok {
		return s
	}
	return fmt.Sprint(z.Member)
}

func members(zs []redis.Z) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = member(z)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
