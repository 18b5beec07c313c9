package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	service "github.com/volunteerfinder/reputation/internal/app"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/internal/domain/reputation"
)

const defaultRankingLimit = 10

type creditErrorResult struct {
	ApplicationID string `json:"application_id"`
	UserID        string `json:"user_id,omitempty"`
	Error         string `json:"error"`
}

// CompleteResult is the output of the complete command.
type CompleteResult struct {
	EventID      string              `json:"event_id"`
	Outcome      reputation.Outcome  `json:"outcome"`
	Credited     int                 `json:"credited"`
	Skipped      int                 `json:"skipped"`
	CreditErrors []creditErrorResult `json:"credit_errors"`
	// OrganizerCounted reports whether completed_events was bumped.
	OrganizerCounted bool `json:"organizer_counted"`
}

func creditErrors(errs []reputation.CreditError) []creditErrorResult {
	out := make([]creditErrorResult, 0, len(errs))
	for _, ce := range errs {
		out = append(out, creditErrorResult{ApplicationID: ce.ApplicationID, UserID: ce.UserID, Error: ce.Cause.Error()})
	}
	return out
}

func printCreditErrors(w io.Writer, errs []creditErrorResult) {
	for _, ce := range errs {
		fmt.Fprintf(w, "  ✗ application %s (user %s): %s\n", ce.ApplicationID, ce.UserID, ce.Error)
	}
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <event-id>",
		Short: "Complete an event and credit its accepted volunteers",
		Long: `Mark the event completed and credit the organizer and every accepted
volunteer. Completing an event twice changes nothing the second time.

Exit codes:
  0 - Event completed (or already completed)
  1 - Event not found, or some volunteers could not be credited
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				return runComplete(ctx, cmd, opts, svc, args[0])
			})
		},
	}
}

func runComplete(ctx context.Context, cmd *cobra.Command, opts *RootOptions, svc *service.Service, eventID string) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	report, err := svc.CompleteEvent(ctx, eventID)
	res := CompleteResult{
		EventID:      eventID,
		Outcome:      report.Outcome,
		Credited:     report.Credited,
		Skipped:      report.Skipped,
		CreditErrors: creditErrors(report.CreditErrors),
	}
	text := func(w io.Writer) {
		fmt.Fprintf(w, "event %s: %s (credited %d, skipped %d)\n", eventID, res.Outcome, res.Credited, res.Skipped)
		printCreditErrors(w, res.CreditErrors)
	}

	switch {
	case errors.Is(err, reputation.ErrEventNotFound):
		return out.Failure(res, WrapExitError(ExitFailure, "event not found", err), text)
	case err != nil:
		return WrapExitError(ExitCommandError, "complete failed", err)
	case report.Err() != nil:
		return out.Failure(res, WrapExitError(ExitFailure, "partial credit", report.Err()), text)
	}
	return out.Success(res, text)
}

// CreditResult is the output of the credit command.
type CreditResult struct {
	EventID      string              `json:"event_id"`
	Credited     int                 `json:"credited"`
	Skipped      int                 `json:"skipped"`
	Users        []string            `json:"users"`
	CreditErrors []creditErrorResult `json:"credit_errors"`
	// OrganizerCounted reports whether completed_events was bumped.
	OrganizerCounted bool `json:"organizer_counted"`
}

// NewCreditCommand creates the credit command.
func NewCreditCommand(opts *RootOptions) *cobra.Command {
	var countOrganizer bool
	cmd := &cobra.Command{
		Use:   "credit <event-id>",
		Short: "Re-run volunteer crediting for a completed event",
		Long: `Credit every accepted volunteer of an already completed event again.
Use it to resume after a crash interrupted a completion; each run adds
one point per accepted volunteer.

Pass --count-organizer when the completion failed before the organizer's
completed_events was bumped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				report, err := svc.CreditEvent(ctx, args[0], countOrganizer)
				if errors.Is(err, reputation.ErrEventNotFound) {
					return WrapExitError(ExitFailure, "event not found", err)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "credit failed", err)
				}
				res := CreditResult{
					EventID:          args[0],
					Credited:         report.Credited,
					Skipped:          report.Skipped,
					Users:            report.Users,
					CreditErrors:     creditErrors(report.Errors),
					OrganizerCounted: report.OrganizerCounted,
				}
				if res.Users == nil {
					res.Users = []string{}
				}
				text := func(w io.Writer) {
					fmt.Fprintf(w, "event %s: credited %d, skipped %d\n", res.EventID, res.Credited, res.Skipped)
					if res.OrganizerCounted {
						fmt.Fprintln(w, "organizer completion counted")
					}
					printCreditErrors(w, res.CreditErrors)
				}
				if len(res.CreditErrors) > 0 {
					return out.Failure(res, NewExitError(ExitFailure,
						fmt.Sprintf("%d volunteers not credited", len(res.CreditErrors))), text)
				}
				return out.Success(res, text)
			})
		},
	}
	cmd.Flags().BoolVar(&countOrganizer, "count-organizer", false, "also bump the organizer's completed_events")
	return cmd
}

// RefreshResult is the output of the refresh-badges command.
type RefreshResult struct {
	UserID  string        `json:"user_id"`
	Updated bool          `json:"updated"`
	Badges  []model.Badge `json:"badges"`
}

// NewRefreshBadgesCommand creates the refresh-badges command.
func NewRefreshBadgesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "refresh-badges <user-id>",
		Short:         "Re-evaluate a user's badges",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				updated, held, err := svc.RefreshBadges(ctx, args[0])
				if errors.Is(err, reputation.ErrUserNotFound) {
					return WrapExitError(ExitFailure, "user not found", err)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "refresh failed", err)
				}
				if held == nil {
					held = []model.Badge{}
				}
				res := RefreshResult{UserID: args[0], Updated: updated, Badges: held}
				return out.Success(res, func(w io.Writer) {
					state := "unchanged"
					if updated {
						state = "updated"
					}
					fmt.Fprintf(w, "user %s: badges %s (%d held)\n", res.UserID, state, len(held))
					for _, b := range held {
						fmt.Fprintf(w, "  • %s\n", b.Name)
					}
				})
			})
		},
	}
}

// ResetResult is the output of the reset-scores command.
type ResetResult struct {
	Updated int      `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// NewResetScoresCommand creates the reset-scores command.
func NewResetScoresCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reset-scores",
		Short:         "Write score 0 for every user without a score",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				n, err := svc.ResetAllScores(ctx)
				res := ResetResult{Updated: n}
				var partial *reputation.ResetError
				if errors.As(err, &partial) {
					for _, e := range partial.Errors {
						res.Errors = append(res.Errors, e.Error())
					}
				} else if err != nil {
					return WrapExitError(ExitCommandError, "reset failed", err)
				}
				text := func(w io.Writer) {
					fmt.Fprintf(w, "reset %d scores\n", res.Updated)
					for _, e := range res.Errors {
						fmt.Fprintf(w, "  ! %s\n", e)
					}
				}
				if len(res.Errors) > 0 {
					return out.Failure(res, NewExitError(ExitFailure,
						fmt.Sprintf("%d scores not reset", len(res.Errors))), text)
				}
				return out.Success(res, text)
			})
		},
	}
}

// RankingEntry is one row of the rankings command.
type RankingEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	Badges   int    `json:"badges"`
}

// NewRankingsCommand creates the rankings command.
func NewRankingsCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:           "rankings",
		Short:         "List the top users by score",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				users, err := svc.TopRankedUsers(ctx, limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "rankings failed", err)
				}
				entries := make([]RankingEntry, len(users))
				for i, u := range users {
					entries[i] = RankingEntry{
						Rank:     i + 1,
						UserID:   u.UserID,
						Username: u.Username,
						Score:    u.ScoreValue(),
						Badges:   len(u.Badges),
					}
				}
				return out.Success(entries, func(w io.Writer) {
					for _, e := range entries {
						fmt.Fprintf(w, "%3d. %-36s %6d  (%d badges)\n", e.Rank, e.UserID, e.Score, e.Badges)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultRankingLimit, "number of users to list")
	return cmd
}

// NewDeleteEventCommand creates the delete-event command.
func NewDeleteEventCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete-event <event-id>",
		Short:         "Delete an event and its applications",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				err := svc.DeleteEvent(ctx, args[0])
				if errors.Is(err, reputation.ErrEventNotFound) {
					return WrapExitError(ExitFailure, "event not found", err)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "delete failed", err)
				}
				return out.Success(map[string]string{"event_id": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "deleted event %s\n", args[0])
				})
			})
		},
	}
}
