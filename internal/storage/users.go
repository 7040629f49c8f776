package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// User owns preferences, briefings, and feedback. Accounts are provisioned
// out of band; there is no registration flow here.
type User struct {
	ID        string
	Email     string
	IsActive  bool
	CreatedAt time.Time
}

// UserPreferences tunes briefing selection and delivery for one user.
type UserPreferences struct {
	UserID          string
	Topics          []string
	KeywordsInclude []string
	KeywordsExclude []string
	SourcesBlocked  []string
	RiskTolerance   int
	EmailDaily      bool
	EmailTimeUTC    string
	UpdatedAt       time.Time
}

// DefaultUserPreferences returns the preferences applied to users who never
// saved any.
func DefaultUserPreferences(userID string) *UserPreferences {
	return &UserPreferences{
		UserID:        userID,
		RiskTolerance: 3,
		EmailTimeUTC:  "07:00",
	}
}

// CreateUser inserts a user. Email must be unique.
func (db *DB) CreateUser(ctx context.Context, email string) (*User, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		RETURNING id, created_at
	`, email).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &User{
		ID:        fromUUID(id),
		Email:     email,
		IsActive:  true,
		CreatedAt: fromTimestamptz(createdAt),
	}, nil
}

// GetUser returns a user by ID, or nil when no such user exists.
//
//nolint:nilnil // nil means no such user
func (db *DB) GetUser(ctx context.Context, userID string) (*User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, is_active, created_at
		FROM users
		WHERE id = $1
	`, toUUID(userID))

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns a user by email, or nil when no such user exists.
//
//nolint:nilnil // nil means no such user
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, email, is_active, created_at
		FROM users
		WHERE email = $1
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

// ListActiveUsers returns users eligible for briefing generation.
func (db *DB) ListActiveUsers(ctx context.Context) ([]User, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, email, is_active, created_at
		FROM users
		WHERE is_active
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListEmailRecipients returns active users who opted into daily email.
func (db *DB) ListEmailRecipients(ctx context.Context) ([]User, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT u.id, u.email, u.is_active, u.created_at
		FROM users u
		JOIN user_preferences p ON p.user_id = u.id
		WHERE u.is_active AND p.email_daily
		ORDER BY u.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list email recipients: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// GetUserPreferences returns stored preferences, or nil when the user never
// saved any. Callers fall back to DefaultUserPreferences.
//
//nolint:nilnil // nil means no stored preferences
func (db *DB) GetUserPreferences(ctx context.Context, userID string) (*UserPreferences, error) {
	var (
		prefs   UserPreferences
		uid     pgtype.UUID
		blocked []uuid.UUID
		updated pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT user_id, topics, keywords_include, keywords_exclude, sources_blocked,
		       risk_tolerance, email_daily, email_time_utc, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`, toUUID(userID)).Scan(&uid, &prefs.Topics, &prefs.KeywordsInclude, &prefs.KeywordsExclude, &blocked,
		&prefs.RiskTolerance, &prefs.EmailDaily, &prefs.EmailTimeUTC, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get user preferences: %w", err)
	}

	prefs.UserID = fromUUID(uid)
	prefs.UpdatedAt = fromTimestamptz(updated)

	prefs.SourcesBlocked = make([]string, 0, len(blocked))
	for _, b := range blocked {
		prefs.SourcesBlocked = append(prefs.SourcesBlocked, b.String())
	}

	return &prefs, nil
}

// UpsertUserPreferences stores preferences, replacing any previous row.
func (db *DB) UpsertUserPreferences(ctx context.Context, prefs *UserPreferences) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, topics, keywords_include, keywords_exclude, sources_blocked,
		                              risk_tolerance, email_daily, email_time_utc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			topics = EXCLUDED.topics,
			keywords_include = EXCLUDED.keywords_include,
			keywords_exclude = EXCLUDED.keywords_exclude,
			sources_blocked = EXCLUDED.sources_blocked,
			risk_tolerance = EXCLUDED.risk_tolerance,
			email_daily = EXCLUDED.email_daily,
			email_time_utc = EXCLUDED.email_time_utc,
			updated_at = now()
	`, toUUID(prefs.UserID), emptyIfNil(prefs.Topics), emptyIfNil(prefs.KeywordsInclude), emptyIfNil(prefs.KeywordsExclude),
		parseUUIDs(prefs.SourcesBlocked), prefs.RiskTolerance, prefs.EmailDaily, prefs.EmailTimeUTC)
	if err != nil {
		return fmt.Errorf("upsert user preferences: %w", err)
	}

	return nil
}

// emptyIfNil keeps nil slices out of NOT NULL array columns.
func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}

	return ss
}

type userRowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row userRowScanner) (*User, error) {
	var (
		user      User
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &user.Email, &user.IsActive, &createdAt); err != nil {
		return nil, err
	}

	user.ID = fromUUID(id)
	user.CreatedAt = fromTimestamptz(createdAt)

	return &user, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	users := []User{}

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		users = append(users, *user)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate users: %w", rows.Err())
	}

	return users, nil
}
