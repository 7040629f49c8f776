// Package email delivers generated briefings to their recipients over SMTP.
// The daily run sends each opted-in user their freshest briefing exactly
// once; delivery is recorded on the briefing row so retried runs do not
// resend.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	statusSent    = "sent"
	statusSkipped = "skipped"
	statusFailed  = "failed"

	logKeyUserID     = "user_id"
	logKeyBriefingID = "briefing_id"
	logKeyEmail      = "email"
)

// Repository is the storage surface daily delivery depends on.
type Repository interface {
	ListEmailRecipients(ctx context.Context) ([]db.User, error)
	GetLatestBriefing(ctx context.Context, scope string) (*db.Briefing, error)
	MarkBriefingSent(ctx context.Context, briefingID string) (bool, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Service emails briefings to users who opted into daily delivery.
type Service struct {
	repo   Repository
	sender Sender
	logger *zerolog.Logger
}

// NewService wires an email delivery service.
func NewService(repo Repository, sender Sender, logger *zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		sender: sender,
		logger: logger,
	}
}

// BatchResult aggregates one daily delivery run.
type BatchResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// SendDaily emails today's briefing to every recipient. Users without a
// briefing generated today, and briefings already delivered, are skipped.
// Send failures are absorbed per user so one bad mailbox cannot stall the
// run.
func (s *Service) SendDaily(ctx context.Context) (BatchResult, error) {
	var batch BatchResult

	midnight := utcMidnight(time.Now().UTC())

	recipients, err := s.repo.ListEmailRecipients(ctx)
	if err != nil {
		return batch, fmt.Errorf("list email recipients: %w", err)
	}

	for _, user := range recipients {
		if err := ctx.Err(); err != nil {
			return batch, err //nolint:wrapcheck
		}

		status, err := s.deliverDaily(ctx, user, midnight)
		observability.EmailsSent.WithLabelValues(status).Inc()

		switch status {
		case statusSent:
			batch.Sent++
		case statusSkipped:
			batch.Skipped++
		case statusFailed:
			batch.Failed++

			s.logger.Warn().Err(err).Str(logKeyUserID, user.ID).Msg("Briefing email failed")
		}
	}

	s.logger.Info().
		Int("sent", batch.Sent).
		Int("skipped", batch.Skipped).
		Int("failed", batch.Failed).
		Msg("Daily briefing emails delivered")

	return batch, nil
}

// deliverDaily sends one user their briefing for the current UTC day.
func (s *Service) deliverDaily(ctx context.Context, user db.User, midnight time.Time) (string, error) {
	briefing, err := s.repo.GetLatestBriefing(ctx, db.UserScope(user.ID))
	if err != nil {
		return statusFailed, fmt.Errorf("load briefing for user %s: %w", user.ID, err)
	}

	if briefing == nil || briefing.CreatedAt.Before(midnight) {
		s.logger.Debug().Str(logKeyUserID, user.ID).Msg("No briefing to email today")

		return statusSkipped, nil
	}

	if briefing.SentAt != nil {
		return statusSkipped, nil
	}

	if err := s.SendBriefing(ctx, briefing, user.Email); err != nil {
		return statusFailed, err
	}

	return statusSent, nil
}

// SendBriefing emails one briefing to one address and records the delivery.
func (s *Service) SendBriefing(ctx context.Context, briefing *db.Briefing, to string) error {
	html, err := RenderHTML(briefing.SummaryMD, briefing.CreatedAt)
	if err != nil {
		return fmt.Errorf("render briefing email: %w", err)
	}

	msg := Message{
		To:      to,
		Subject: Subject(briefing.CreatedAt),
		Text:    RenderText(briefing.SummaryMD, briefing.CreatedAt),
		HTML:    html,
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send briefing email: %w", err)
	}

	if _, err := s.repo.MarkBriefingSent(ctx, briefing.ID); err != nil {
		// Delivered but not recorded; the next daily run may resend.
		s.logger.Warn().Err(err).Str(logKeyBriefingID, briefing.ID).Msg("Briefing sent but not marked")
	}

	s.logger.Info().
		Str(logKeyBriefingID, briefing.ID).
		Str(logKeyEmail, to).
		Msg("Briefing email sent")

	return nil
}

// utcMidnight returns the start of the UTC day containing t.
func utcMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
