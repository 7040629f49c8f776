package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Feedback is one user's verdict on one item. A later submission for the
// same pair replaces the earlier one.
type Feedback struct {
	UserID    string
	RawItemID string
	Kind      string
	Note      string
	CreatedAt time.Time
}

// UpsertFeedback stores feedback, replacing any previous feedback by the
// same user on the same item. CreatedAt is filled in from the database.
func (db *DB) UpsertFeedback(ctx context.Context, feedback *Feedback) error {
	var createdAt pgtype.Timestamptz

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO feedback (user_id, raw_item_id, kind, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, raw_item_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			note = EXCLUDED.note,
			created_at = now()
		RETURNING created_at
	`, toUUID(feedback.UserID), toUUID(feedback.RawItemID), feedback.Kind, SanitizeUTF8(feedback.Note)).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}

	feedback.CreatedAt = fromTimestamptz(createdAt)

	return nil
}

// ListFeedback returns a user's feedback newest first, optionally filtered
// by kind.
func (db *DB) ListFeedback(ctx context.Context, userID, kind string) ([]Feedback, error) {
	query := `
		SELECT user_id, raw_item_id, kind, note, created_at
		FROM feedback
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	args := []any{toUUID(userID)}

	if kind != "" {
		query = `
			SELECT user_id, raw_item_id, kind, note, created_at
			FROM feedback
			WHERE user_id = $1 AND kind = $2
			ORDER BY created_at DESC
		`
		args = append(args, kind)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	feedbacks := []Feedback{}

	for rows.Next() {
		var (
			f         Feedback
			userUUID  pgtype.UUID
			itemUUID  pgtype.UUID
			createdAt pgtype.Timestamptz
		)

		if err := rows.Scan(&userUUID, &itemUUID, &f.Kind, &f.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}

		f.UserID = fromUUID(userUUID)
		f.RawItemID = fromUUID(itemUUID)
		f.CreatedAt = fromTimestamptz(createdAt)

		feedbacks = append(feedbacks, f)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate feedback: %w", rows.Err())
	}

	return feedbacks, nil
}

// DeleteFeedback removes a user's feedback on an item and reports whether a
// row existed.
func (db *DB) DeleteFeedback(ctx context.Context, userID, rawItemID string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM feedback
		WHERE user_id = $1 AND raw_item_id = $2
	`, toUUID(userID), toUUID(rawItemID))
	if err != nil {
		return false, fmt.Errorf("delete feedback: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
