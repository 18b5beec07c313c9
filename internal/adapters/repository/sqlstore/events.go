package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

const eventColumns = `event_id, creator_user_id, image_url, start_date, end_date, description,
	volunteer_form, hits, category, org_title, country, region, city, completed`

// GetEvent loads the event row and its ordered application ids.
func (s *Store) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	var e model.Event
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE event_id = ?`), eventID).Scan(
		&e.EventID, &e.CreatorUserID, &e.ImageURL, &e.StartDate, &e.EndDate, &e.Description,
		&e.VolunteerForm, &e.Hits, &e.Category, &e.OrgTitle, &e.Country, &e.Region, &e.City, &e.Completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT application_id FROM event_applications WHERE event_id = ? ORDER BY seq, application_id`), eventID)
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s applications: %w", eventID, err)
	}
	if e.Applications, err = scanStrings(rows); err != nil {
		return model.Event{}, fmt.Errorf("scan event %s applications: %w", eventID, err)
	}
	return e, nil
}

// CreateEvent writes e, replacing an existing event with the same id.
func (s *Store) CreateEvent(ctx context.Context, e model.Event) error {
	if e.EventID == "" {
		return fmt.Errorf("event id: %w", repository.ErrInvalidArgument)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteEventRows(ctx, tx, e.EventID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.EventID, e.CreatorUserID, e.ImageURL, e.StartDate, e.EndDate, e.Description,
			e.VolunteerForm, e.Hits, e.Category, e.OrgTitle, e.Country, e.Region, e.City, e.Completed,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
		seen := make(map[string]struct{}, len(e.Applications))
		for _, appID := range e.Applications {
			if _, dup := seen[appID]; dup {
				continue
			}
			seen[appID] = struct{}{}
			if _, err := tx.ExecContext(ctx, s.q(
				`INSERT INTO event_applications (event_id, application_id, seq) VALUES (?, ?, ?)`),
				e.EventID, appID, len(seen),
			); err != nil {
				return fmt.Errorf("insert event %s application %s: %w", e.EventID, appID, err)
			}
		}
		return nil
	})
}

// DeleteEvent removes the event and its application list.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "events", "event_id", eventID, true)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
		}
		return s.deleteEventRows(ctx, tx, eventID)
	})
}

func (s *Store) deleteEventRows(ctx context.Context, tx *sql.Tx, eventID string) error {
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM event_applications WHERE event_id = ?`), eventID); err != nil {
		return fmt.Errorf("delete event %s applications: %w", eventID, err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM events WHERE event_id = ?`), eventID); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

// MarkEventCompleted is a conditional update on completed = FALSE.
func (s *Store) MarkEventCompleted(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE events SET completed = TRUE WHERE event_id = ? AND completed = FALSE`), eventID)
	if err != nil {
		return false, fmt.Errorf("complete event %s: %w", eventID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, s.db, "events", "event_id", eventID, false)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
	}
	return false, nil
}

// AppendEventApplication locks the event row and appends while it is open.
func (s *Store) AppendEventApplication(ctx context.Context, eventID, appID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var completed bool
		err := tx.QueryRowContext(ctx, s.q(`SELECT completed FROM events WHERE event_id = ?`+s.d.forUpdate), eventID).Scan(&completed)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event %s: %w", eventID, repository.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock event %s: %w", eventID, err)
		}
		if completed {
			return fmt.Errorf("event %s: %w", eventID, repository.ErrEventCompleted)
		}
		seq, err := s.nextSeq(ctx, tx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM event_applications WHERE event_id = ?`, eventID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO event_applications (event_id, application_id, seq)
			VALUES (?, ?, ?) ON CONFLICT (event_id, application_id) DO NOTHING`), eventID, appID, seq); err != nil {
			return fmt.Errorf("append event %s application %s: %w", eventID, appID, err)
		}
		return nil
	})
}
