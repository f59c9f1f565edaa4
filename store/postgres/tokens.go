package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/idpcore"
	"github.com/MrEthical07/idpcore/internal"
)

// Token rows are keyed by the hash of the token value.

func (s *Store) SaveToken(ctx context.Context, token idpcore.Token) error {
	query :=
		`INSERT INTO user_token (token_hash, token_type, username, expiry)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token_hash) DO UPDATE SET token_type = EXCLUDED.token_type,
		   username = EXCLUDED.username, expiry = EXCLUDED.expiry`
	_, err := s.db.ExecContext(ctx, query, internal.HashToken(token.Value), string(token.Type), token.Username, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, value string) (idpcore.Token, error) {
	return scanToken(value, s.db.QueryRowContext(ctx,
		`SELECT token_type, username, expiry FROM user_token WHERE token_hash = $1`,
		internal.HashToken(value)))
}

// ConsumeToken deletes the row and returns it; DELETE ... RETURNING hands a
// row to at most one caller.
func (s *Store) ConsumeToken(ctx context.Context, value string) (idpcore.Token, error) {
	return scanToken(value, s.db.QueryRowContext(ctx,
		`DELETE FROM user_token WHERE token_hash = $1 RETURNING token_type, username, expiry`,
		internal.HashToken(value)))
}

func (s *Store) DeleteToken(ctx context.Context, value string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_token WHERE token_hash = $1`, internal.HashToken(value))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanToken(value string, row *sql.Row) (idpcore.Token, error) {
	t := idpcore.Token{Value: value}
	var tokenType string
	if err := row.Scan(&tokenType, &t.Username, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idpcore.Token{}, idpcore.ErrTokenInvalid
		}
		return idpcore.Token{}, fmt.Errorf("db error: %w", err)
	}
	t.Type = idpcore.TokenType(tokenType)
	return t, nil
}

var (
	_ idpcore.AccountStore = (*Store)(nil)
	_ idpcore.RoleStore    = (*Store)(nil)
	_ idpcore.GroupStore   = (*Store)(nil)
	_ idpcore.TokenStore   = (*Store)(nil)
	_ idpcore.RetryTracker = (*Store)(nil)
)
