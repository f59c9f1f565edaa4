package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/MrEthical07/idpcore"
	"github.com/MrEthical07/idpcore/authority"
)

func (s *Store) FindRoleByCode(ctx context.Context, code string) (idpcore.Authority, error) {
	query := `SELECT role_code, role_name, group_assignable FROM roles WHERE role_code = $1`

	var r idpcore.Authority
	err := s.db.QueryRowContext(ctx, query, authority.Normalize(code)).Scan(&r.Code, &r.Name, &r.GroupAssignable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idpcore.Authority{}, idpcore.ErrRoleNotFound
		}
		return idpcore.Authority{}, fmt.Errorf("db error: %w", err)
	}
	return r, nil
}

func (s *Store) FindAllRoles(ctx context.Context) ([]idpcore.Authority, error) {
	return s.queryRoles(ctx, `SELECT role_code, role_name, group_assignable FROM roles ORDER BY role_name`)
}

// FindGroupAssignableRoles returns the distinct roles assignable through
// the groups of username, ordered by name.
func (s *Store) FindGroupAssignableRoles(ctx context.Context, username string) ([]idpcore.Authority, error) {
	query :=
		`SELECT DISTINCT r.role_code, r.role_name, r.group_assignable
		 FROM users u
		 JOIN user_group ug ON ug.user_id = u.user_id
		 JOIN group_assignable_role gar ON gar.group_code = ug.group_code
		 JOIN roles r ON r.role_code = gar.role_code
		 WHERE u.username = $1
		 ORDER BY r.role_name`
	return s.queryRoles(ctx, query, username)
}

func (s *Store) queryRoles(ctx context.Context, query string, args ...any) ([]idpcore.Authority, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []idpcore.Authority
	for rows.Next() {
		var r idpcore.Authority
		if err := rows.Scan(&r.Code, &r.Name, &r.GroupAssignable); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *Store) FindGroupByCode(ctx context.Context, code string) (idpcore.Group, error) {
	groups, err := s.queryGroups(ctx, `WHERE g.group_code = $1`, authority.NormalizeGroup(code))
	if err != nil {
		return idpcore.Group{}, err
	}
	if len(groups) == 0 {
		return idpcore.Group{}, idpcore.ErrGroupNotFound
	}
	return groups[0], nil
}

func (s *Store) FindAllGroups(ctx context.Context) ([]idpcore.Group, error) {
	return s.queryGroups(ctx, "")
}

// queryGroups loads groups with their assignable roles in one pass, ordered
// by name.
func (s *Store) queryGroups(ctx context.Context, where string, args ...any) ([]idpcore.Group, error) {
	query :=
		`SELECT g.group_code, g.group_name, gar.role_code, gar.automatic
		 FROM groups g
		 LEFT JOIN group_assignable_role gar ON gar.group_code = g.group_code ` + where + `
		 ORDER BY g.group_name, g.group_code, gar.role_code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	byCode := map[string]*idpcore.Group{}
	var order []string
	for rows.Next() {
		var (
			code, name string
			role       sql.NullString
			automatic  sql.NullBool
		)
		if err := rows.Scan(&code, &name, &role, &automatic); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		g, ok := byCode[code]
		if !ok {
			g = &idpcore.Group{Code: code, Name: name}
			byCode[code] = g
			order = append(order, code)
		}
		if role.Valid {
			g.AssignableRoles = append(g.AssignableRoles, idpcore.GroupAssignableRole{RoleCode: role.String, Automatic: automatic.Bool})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	out := make([]idpcore.Group, 0, len(order))
	for _, code := range order {
		out = append(out, *byCode[code])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
