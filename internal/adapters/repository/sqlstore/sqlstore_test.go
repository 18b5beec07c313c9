package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/adapters/repository/storetest"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reputation.db")
	s, err := Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	return s
}

func TestSQLiteContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return openSQLite(t)
	})
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("VOLUNTEER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOLUNTEER_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := Open(context.Background(), DriverPostgres, dsn)
		require.NoError(t, err)
		for _, table := range []string{"events", "event_applications", "users", "user_refs", "user_badges", "applications"} {
			_, err := s.db.Exec("DELETE FROM " + table)
			require.NoError(t, err)
		}
		return s
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reputation.db")
	ctx := context.Background()

	s1, err := Open(ctx, "sqlite", path)
	require.NoError(t, err)
	require.NoError(t, s1.CreateUser(ctx, model.User{UserID: "u1", Score: model.Int64(5)}))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer s2.Close()

	u, err := s2.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(5), u.ScoreValue())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	require.ErrorIs(t, err, repository.ErrInvalidArgument)
}

func TestPlaceholderRebind(t *testing.T) {
	pg := &Store{d: dialects[DriverPostgres]}
	lite := &Store{d: dialects[DriverSQLite]}
	query := `UPDATE users SET score = COALESCE(score, 0) + ? WHERE user_id = ?`

	require.Equal(t, `UPDATE users SET score = COALESCE(score, 0) + $1 WHERE user_id = $2`, pg.q(query))
	require.Equal(t, query, lite.q(query))
}

func TestCreateEventReplacesApplications(t *testing.T) {
	s := openSQLite(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, model.Event{EventID: "e1", Applications: []string{"a1", "a2", "a1"}}))
	e, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, e.Applications)

	require.NoError(t, s.CreateEvent(ctx, model.Event{EventID: "e1", Applications: []string{"a3"}}))
	e, err = s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, []string{"a3"}, e.Applications)
}
