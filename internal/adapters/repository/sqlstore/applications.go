package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// GetApplication loads one application.
func (s *Store) GetApplication(ctx context.Context, appID string) (model.Application, error) {
	var (
		a      model.Application
		status string
	)
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT application_id, applicant_user_id, event_id, status FROM applications WHERE application_id = ?`), appID,
	).Scan(&a.ApplicationID, &a.ApplicantUserID, &a.EventID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Application{}, fmt.Errorf("application %s: %w", appID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("get application %s: %w", appID, err)
	}
	a.Status = model.Status(status)
	return a, nil
}

// CreateApplication upserts a.
func (s *Store) CreateApplication(ctx context.Context, a model.Application) error {
	if a.ApplicationID == "" {
		return fmt.Errorf("application id: %w", repository.ErrInvalidArgument)
	}
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO applications (application_id, applicant_user_id, event_id, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (application_id) DO UPDATE SET
			applicant_user_id = excluded.applicant_user_id,
			event_id = excluded.event_id,
			status = excluded.status`),
		a.ApplicationID, a.ApplicantUserID, a.EventID, string(a.Status),
	)
	if err != nil {
		return fmt.Errorf("insert application %s: %w", a.ApplicationID, err)
	}
	return nil
}

// SetApplicationStatus updates the review status.
func (s *Store) SetApplicationStatus(ctx context.Context, appID string, st model.Status) error {
	if !st.Valid() {
		return fmt.Errorf("status %q: %w", st, repository.ErrInvalidArgument)
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE applications SET status = ? WHERE application_id = ?`), string(st), appID)
	if err != nil {
		return fmt.Errorf("update application %s: %w", appID, err)
	}
	return s.expectOne(res, "application", appID)
}

// DeleteApplication removes the application.
func (s *Store) DeleteApplication(ctx context.Context, appID string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM applications WHERE application_id = ?`), appID)
	if err != nil {
		return fmt.Errorf("delete application %s: %w", appID, err)
	}
	return s.expectOne(res, "application", appID)
}

func (s *Store) expectOne(res sql.Result, kind, id string) error {
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
	}
	return nil
}
