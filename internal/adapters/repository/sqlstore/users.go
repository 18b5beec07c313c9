package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

const userColumns = `user_id, first_name, last_name, age, sex, email, username, password, score, completed_events`

var counterColumns = map[model.Counter]string{
	model.CounterScore:           "score",
	model.CounterCompletedEvents: "completed_events",
}

// GetUser loads the user row with its reference lists and badges.
func (s *Store) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.loadUser(ctx, s.db, userID)
}

func (s *Store) loadUser(ctx context.Context, db querier, userID string) (model.User, error) {
	var (
		u         model.User
		score     sql.NullInt64
		completed sql.NullInt64
	)
	err := db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE user_id = ?`), userID).Scan(
		&u.UserID, &u.FirstName, &u.LastName, &u.Age, &u.Sex, &u.Email, &u.Username, &u.Password, &score, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	if score.Valid {
		u.Score = model.Int64(score.Int64)
	}
	if completed.Valid {
		u.CompletedEvents = model.Int64(completed.Int64)
	}

	if u.Events, err = s.refs(ctx, db, userID, model.RefEvents); err != nil {
		return model.User{}, err
	}
	if u.Applications, err = s.refs(ctx, db, userID, model.RefApplications); err != nil {
		return model.User{}, err
	}
	if u.Badges, err = s.badges(ctx, db, userID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) refs(ctx context.Context, db querier, userID string, list model.RefList) ([]string, error) {
	rows, err := db.QueryContext(ctx, s.q(
		`SELECT ref_id FROM user_refs WHERE user_id = ? AND list = ? ORDER BY seq, ref_id`), userID, string(list))
	if err != nil {
		return nil, fmt.Errorf("get user %s %s: %w", userID, list, err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan user %s %s: %w", userID, list, err)
	}
	return ids, nil
}

func (s *Store) badges(ctx context.Context, db querier, userID string) ([]model.Badge, error) {
	rows, err := db.QueryContext(ctx, s.q(
		`SELECT name, description FROM user_badges WHERE user_id = ? ORDER BY seq, name`), userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s badges: %w", userID, err)
	}
	defer rows.Close()
	var out []model.Badge
	for rows.Next() {
		var b model.Badge
		if err := rows.Scan(&b.Name, &b.Description); err != nil {
			return nil, fmt.Errorf("scan user %s badges: %w", userID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateUser writes u, replacing an existing user with the same id.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	if u.UserID == "" {
		return fmt.Errorf("user id: %w", repository.ErrInvalidArgument)
	}
	var score, completed sql.NullInt64
	if u.Score != nil {
		score = sql.NullInt64{Int64: *u.Score, Valid: true}
	}
	if u.CompletedEvents != nil {
		completed = sql.NullInt64{Int64: *u.CompletedEvents, Valid: true}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"user_refs", "user_badges", "users"} {
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE user_id = ?`), u.UserID); err != nil {
				return fmt.Errorf("clear user %s %s: %w", u.UserID, table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			u.UserID, u.FirstName, u.LastName, u.Age, u.Sex, u.Email, u.Username, u.Password, score, completed,
		); err != nil {
			return fmt.Errorf("insert user %s: %w", u.UserID, err)
		}
		for list, ids := range map[model.RefList][]string{model.RefEvents: u.Events, model.RefApplications: u.Applications} {
			for i, id := range ids {
				if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO user_refs (user_id, list, ref_id, seq)
					VALUES (?, ?, ?, ?) ON CONFLICT (user_id, list, ref_id) DO NOTHING`),
					u.UserID, string(list), id, i+1,
				); err != nil {
					return fmt.Errorf("insert user %s %s: %w", u.UserID, list, err)
				}
			}
		}
		for i, b := range u.Badges {
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO user_badges (user_id, name, description, seq)
				VALUES (?, ?, ?, ?) ON CONFLICT (user_id, name) DO NOTHING`),
				u.UserID, b.Name, b.Description, i+1,
			); err != nil {
				return fmt.Errorf("insert user %s badge: %w", u.UserID, err)
			}
		}
		return nil
	})
}

// IncrementCounter is a single UPDATE ... RETURNING; absent counts as zero.
func (s *Store) IncrementCounter(ctx context.Context, userID string, c model.Counter, delta int64) (int64, error) {
	col, ok := counterColumns[c]
	if !ok {
		return 0, fmt.Errorf("counter %q: %w", c, repository.ErrInvalidArgument)
	}
	var next int64
	err := s.db.QueryRowContext(ctx, s.q(
		`UPDATE users SET `+col+` = COALESCE(`+col+`, 0) + ? WHERE user_id = ? RETURNING `+col),
		delta, userID,
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s for user %s: %w", col, userID, err)
	}
	return next, nil
}

// AddUserRef appends id to list unless present.
func (s *Store) AddUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	if !list.Valid() {
		return fmt.Errorf("list %q: %w", list, repository.ErrInvalidArgument)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		seq, err := s.nextSeq(ctx, tx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM user_refs WHERE user_id = ? AND list = ?`, userID, string(list))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO user_refs (user_id, list, ref_id, seq)
			VALUES (?, ?, ?, ?) ON CONFLICT (user_id, list, ref_id) DO NOTHING`),
			userID, string(list), id, seq,
		); err != nil {
			return fmt.Errorf("add user %s %s ref: %w", userID, list, err)
		}
		return nil
	})
}

// RemoveUserRef deletes id from list.
func (s *Store) RemoveUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	if !list.Valid() {
		return fmt.Errorf("list %q: %w", list, repository.ErrInvalidArgument)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(
			`DELETE FROM user_refs WHERE user_id = ? AND list = ? AND ref_id = ?`), userID, string(list), id,
		); err != nil {
			return fmt.Errorf("remove user %s %s ref: %w", userID, list, err)
		}
		return nil
	})
}

// AddBadges inserts badges the user does not hold yet, in order.
func (s *Store) AddBadges(ctx context.Context, userID string, badges []model.Badge) ([]model.Badge, error) {
	var out []model.Badge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		for _, b := range badges {
			seq, err := s.nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM user_badges WHERE user_id = ?`, userID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO user_badges (user_id, name, description, seq)
				VALUES (?, ?, ?, ?) ON CONFLICT (user_id, name) DO NOTHING`),
				userID, b.Name, b.Description, seq,
			); err != nil {
				return fmt.Errorf("add user %s badge %s: %w", userID, b.Name, err)
			}
		}
		var err error
		out, err = s.badges(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	ok, err := s.exists(ctx, tx, "users", "user_id", userID, true)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	return nil
}

// ListUnscoredUsers selects users whose score is NULL or 0.
func (s *Store) ListUnscoredUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM users WHERE score IS NULL OR score = 0 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list unscored users: %w", err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan unscored users: %w", err)
	}
	return ids, nil
}

// ResetScoreIfUnscored writes score = 0 guarded by the same predicate.
func (s *Store) ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE users SET score = 0 WHERE user_id = ? AND (score IS NULL OR score = 0)`), userID)
	if err != nil {
		return false, fmt.Errorf("reset score for user %s: %w", userID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, s.db, "users", "user_id", userID, false)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	return false, nil
}

// TopByScore orders by COALESCE(score, 0) desc, user_id asc.
func (s *Store) TopByScore(ctx context.Context, n int) ([]model.User, error) {
	if n < 1 {
		return nil, fmt.Errorf("limit %d: %w", n, repository.ErrInvalidArgument)
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT user_id FROM users ORDER BY COALESCE(score, 0) DESC, user_id ASC LIMIT ?`), n)
	if err != nil {
		return nil, fmt.Errorf("rank users: %w", err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan ranked users: %w", err)
	}
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.loadUser(ctx, s.db, id)
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
