package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/adapters/repository/storetest"
	"github.com/volunteerfinder/reputation/internal/config"
)

func seededStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore()
	require.NoError(t, storetest.Seed(context.Background(), s, "ev1", 3))
	return s
}

func openerFor(s repository.Store) StoreOpener {
	return func(context.Context) (*config.Config, repository.Store, error) {
		return config.New(), s, nil
	}
}

func execute(t *testing.T, s repository.Store, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand(openerFor(s))
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp
}

func TestCompleteCommand(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	out, err := execute(t, s, "complete", "ev1")
	require.NoError(t, err)
	assert.Contains(t, out, "event ev1: completed (credited 3, skipped 0)")

	ev, err := s.GetEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, ev.Completed)

	v0, err := s.GetUser(ctx, "v0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v0.ScoreValue())
	// Queued refreshes are drained before the command returns.
	assert.True(t, v0.HasBadge("Volunteering First Steps"))

	org, err := s.GetUser(ctx, "organizer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), org.CompletedEventsValue())
	assert.True(t, org.HasBadge("Event Completer First Steps"))
}

func TestCompleteCommandTwiceIsNoop(t *testing.T) {
	s := seededStore(t)

	_, err := execute(t, s, "complete", "ev1")
	require.NoError(t, err)

	out, err := execute(t, s, "--format", "json", "complete", "ev1")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "already_completed", data["outcome"])
	assert.Equal(t, float64(0), data["credited"])

	v0, err := s.GetUser(context.Background(), "v0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v0.ScoreValue())
}

func TestCompleteCommandUnknownEvent(t *testing.T) {
	s := seededStore(t)

	out, err := execute(t, s, "--format", "json", "complete", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "not_found", resp.Data.(map[string]interface{})["outcome"])
}

func TestCompleteCommandRequiresEventID(t *testing.T) {
	_, err := execute(t, seededStore(t), "complete")
	require.Error(t, err)
}

func TestCreditCommand(t *testing.T) {
	s := seededStore(t)

	_, err := execute(t, s, "credit", "ev1")
	require.Error(t, err, "open events cannot be re-credited")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, s, "complete", "ev1")
	require.NoError(t, err)

	out, err := execute(t, s, "--format", "json", "credit", "ev1")
	require.NoError(t, err)
	data := decodeResponse(t, out).Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["credited"])
	assert.Len(t, data["users"], 3)

	assert.Equal(t, false, data["organizer_counted"])

	v2, err := s.GetUser(context.Background(), "v2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.ScoreValue())

	out, err = execute(t, s, "credit", "--count-organizer", "ev1")
	require.NoError(t, err)
	assert.Contains(t, out, "organizer completion counted")

	org, err := s.GetUser(context.Background(), "organizer")
	require.NoError(t, err)
	assert.Equal(t, int64(2), org.CompletedEventsValue())
}

func TestResetScoresCommand(t *testing.T) {
	s := seededStore(t)

	out, err := execute(t, s, "reset-scores")
	require.NoError(t, err)
	assert.Contains(t, out, "reset 4 scores")

	u, err := s.GetUser(context.Background(), "v1")
	require.NoError(t, err)
	require.NotNil(t, u.Score)
	assert.Equal(t, int64(0), *u.Score)
}

// resetFailingStore fails the score reset for selected users.
type resetFailingStore struct {
	*repository.MemoryStore
	fail map[string]bool
}

func (s *resetFailingStore) ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error) {
	if s.fail[userID] {
		return false, errors.New("boom")
	}
	return s.MemoryStore.ResetScoreIfUnscored(ctx, userID)
}

func TestResetScoresCommandPartialFailure(t *testing.T) {
	s := &resetFailingStore{MemoryStore: seededStore(t), fail: map[string]bool{"v1": true}}

	out, err := execute(t, s, "reset-scores")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "reset 3 scores")
	assert.Contains(t, out, "reset score for v1")

	out, err = execute(t, s, "--format", "json", "reset-scores")
	require.Error(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["updated"], "zero scores are rewritten on every run")
	assert.Len(t, data["errors"], 1)
}

func TestRankingsCommand(t *testing.T) {
	s := seededStore(t)
	_, err := execute(t, s, "complete", "ev1")
	require.NoError(t, err)

	out, err := execute(t, s, "--format", "json", "rankings", "--limit", "2")
	require.NoError(t, err)
	entries := decodeResponse(t, out).Data.([]interface{})
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "v0", first["user_id"])
	assert.Equal(t, float64(1), first["rank"])

	_, err = execute(t, s, "rankings", "--limit", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRefreshBadgesCommand(t *testing.T) {
	s := seededStore(t)

	_, err := execute(t, s, "refresh-badges", "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := execute(t, s, "refresh-badges", "v0")
	require.NoError(t, err)
	assert.Contains(t, out, "user v0: badges unchanged (0 held)")
}

func TestDeleteEventCommand(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	out, err := execute(t, s, "delete-event", "ev1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted event ev1")

	_, err = s.GetEvent(ctx, "ev1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = s.GetApplication(ctx, "ev1-a0")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	_, err = execute(t, s, "delete-event", "ev1")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, seededStore(t), "--format", "xml", "reset-scores")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestOpenerFailure(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	cmd := NewRootCommand(func(context.Context) (*config.Config, repository.Store, error) {
		return nil, nil, boom
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"reset-scores"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", errors.New("y"))))
}
