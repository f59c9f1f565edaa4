package postgres

import (
	"context"
	"fmt"
	"strings"
)

// IncrementRetries bumps the counter of username. The upsert is a single
// statement, so concurrent failures each see a distinct count. The row is
// removed only by ResetRetries.
func (s *Store) IncrementRetries(ctx context.Context, username string) (int, error) {
	query :=
		`INSERT INTO user_retries (username, retry_count) VALUES ($1, 1)
		 ON CONFLICT (username) DO UPDATE SET retry_count = user_retries.retry_count + 1
		 RETURNING retry_count`

	var count int
	if err := s.db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(username))).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (s *Store) ResetRetries(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_retries WHERE username = $1`, strings.ToUpper(strings.TrimSpace(username)))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
