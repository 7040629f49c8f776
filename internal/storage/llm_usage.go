package db

import (
	"context"
	"fmt"
	"time"
)

// UsageTotals aggregates provider spend counters for one usage kind.
type UsageTotals struct {
	Kind   string
	Calls  int64
	Tokens int64
}

// IncrementUsage records provider spend. Kind is llm or embedding; scope is
// a counter key such as "global" or "user:<uuid>". Calls below one count as
// one call.
func (db *DB) IncrementUsage(ctx context.Context, kind, scope string, calls, tokens int) error {
	if calls < 1 {
		calls = 1
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO llm_usage (kind, scope, calls, tokens)
		VALUES ($1, $2, $3, $4)
	`, kind, scope, calls, tokens)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	return nil
}

// CountUsageSince sums calls of a kind since the given time. An empty scope
// counts all scopes.
func (db *DB) CountUsageSince(ctx context.Context, kind, scope string, since time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(calls), 0)
		FROM llm_usage
		WHERE kind = $1 AND created_at >= $2
	`
	args := []any{kind, toTimestamptz(since)}

	if scope != "" {
		query = `
			SELECT COALESCE(SUM(calls), 0)
			FROM llm_usage
			WHERE kind = $1 AND created_at >= $2 AND scope = $3
		`
		args = append(args, scope)
	}

	var count int64

	if err := db.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}

	return int(count), nil
}

// GetUsageTotals aggregates calls and tokens per kind since the given time.
func (db *DB) GetUsageTotals(ctx context.Context, since time.Time) ([]UsageTotals, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT kind, COALESCE(SUM(calls), 0)::bigint, COALESCE(SUM(tokens), 0)::bigint
		FROM llm_usage
		WHERE created_at >= $1
		GROUP BY kind
		ORDER BY kind
	`, toTimestamptz(since))
	if err != nil {
		return nil, fmt.Errorf("get usage totals: %w", err)
	}
	defer rows.Close()

	totals := []UsageTotals{}

	for rows.Next() {
		var t UsageTotals

		if err := rows.Scan(&t.Kind, &t.Calls, &t.Tokens); err != nil {
			return nil, fmt.Errorf("scan usage totals: %w", err)
		}

		totals = append(totals, t)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate usage totals: %w", rows.Err())
	}

	return totals, nil
}
