package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/idpcore"
	"github.com/google/uuid"
)

const accountColumns = `user_id, username, password_hash, email, first_name, verified, locked, enabled, master, inactive_reason, password_expiry, last_logged_in`

func (s *Store) FindByUsername(ctx context.Context, username string, masterOnly bool) (idpcore.Account, error) {
	return findAccount(ctx, s.db, username, masterOnly, false)
}

// Save inserts account or replaces the row with the same username, along
// with its role and group links.
func (s *Store) Save(ctx context.Context, account idpcore.Account) error {
	account.Username = strings.ToUpper(strings.TrimSpace(account.Username))
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		query :=
			`INSERT INTO users (` + accountColumns + `)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (username) DO UPDATE SET
			   password_hash = EXCLUDED.password_hash, email = EXCLUDED.email,
			   first_name = EXCLUDED.first_name, verified = EXCLUDED.verified,
			   locked = EXCLUDED.locked, enabled = EXCLUDED.enabled, master = EXCLUDED.master,
			   inactive_reason = EXCLUDED.inactive_reason, password_expiry = EXCLUDED.password_expiry,
			   last_logged_in = EXCLUDED.last_logged_in
			 RETURNING user_id`

		err := tx.QueryRowContext(ctx, query,
			account.ID, account.Username, nullString(account.PasswordHash), nullString(account.Email),
			nullString(account.FirstName), account.Verified, account.Locked, account.Enabled, account.Master,
			nullString(account.InactiveReason), nullTime(account.PasswordExpiry), nullTime(account.LastLoggedIn),
		).Scan(&account.ID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return writeLinks(ctx, tx, account)
	})
}

// Update locks the account row for the duration of fn.
func (s *Store) Update(ctx context.Context, username string, fn func(*idpcore.Account) error) (idpcore.Account, error) {
	var updated idpcore.Account
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		current, err := findAccount(ctx, tx, username, false, true)
		if err != nil {
			return err
		}
		next := current
		next.Authorities = append([]string(nil), current.Authorities...)
		next.Groups = append([]string(nil), current.Groups...)
		if err := fn(&next); err != nil {
			return err
		}
		next.ID, next.Username = current.ID, current.Username

		query :=
			`UPDATE users SET password_hash = $2, email = $3, first_name = $4, verified = $5,
			   locked = $6, enabled = $7, master = $8, inactive_reason = $9,
			   password_expiry = $10, last_logged_in = $11
			 WHERE user_id = $1`
		_, err = tx.ExecContext(ctx, query,
			next.ID, nullString(next.PasswordHash), nullString(next.Email), nullString(next.FirstName),
			next.Verified, next.Locked, next.Enabled, next.Master, nullString(next.InactiveReason),
			nullTime(next.PasswordExpiry), nullTime(next.LastLoggedIn),
		)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if err := writeLinks(ctx, tx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return idpcore.Account{}, err
	}
	return updated, nil
}

func findAccount(ctx context.Context, db DBTX, username string, masterOnly, forUpdate bool) (idpcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE username = $1`
	if masterOnly {
		query += ` AND master`
	}
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		a                              idpcore.Account
		hash, email, firstName, reason sql.NullString
		expiry, lastLogin              sql.NullTime
	)
	err := db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(username))).Scan(
		&a.ID, &a.Username, &hash, &email, &firstName, &a.Verified, &a.Locked, &a.Enabled, &a.Master,
		&reason, &expiry, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idpcore.Account{}, idpcore.ErrAccountNotFound
		}
		return idpcore.Account{}, fmt.Errorf("db error: %w", err)
	}
	a.PasswordHash, a.Email, a.FirstName, a.InactiveReason = hash.String, email.String, firstName.String, reason.String
	a.PasswordExpiry, a.LastLoggedIn = expiry.Time, lastLogin.Time

	if a.Authorities, err = queryCodes(ctx, db, `SELECT role_code FROM user_role WHERE user_id = $1 ORDER BY role_code`, a.ID); err != nil {
		return idpcore.Account{}, err
	}
	if a.Groups, err = queryCodes(ctx, db, `SELECT group_code FROM user_group WHERE user_id = $1 ORDER BY group_code`, a.ID); err != nil {
		return idpcore.Account{}, err
	}
	return a, nil
}

func writeLinks(ctx context.Context, tx DBTX, a idpcore.Account) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_role WHERE user_id = $1`, a.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, code := range a.Authorities {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_role (user_id, role_code) VALUES ($1, $2) ON CONFLICT DO NOTHING`, a.ID, code); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_group WHERE user_id = $1`, a.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, code := range a.Groups {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_group (user_id, group_code) VALUES ($1, $2) ON CONFLICT DO NOTHING`, a.ID, code); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func queryCodes(ctx context.Context, db DBTX, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
