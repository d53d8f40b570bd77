package store

import (
	"context"
	"fmt"
	"time"
)

// AssignRole grants role to userID. Granting a role twice is a no-op and
// reports added=false.
func (s *Store) AssignRole(ctx context.Context, role, userID, grantedBy string) (added bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO role_members (role, user_id, granted_by, granted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(role, user_id) DO NOTHING`,
		role, userID, grantedBy, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("store: assign role %q: %w", role, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: assign role %q: %w", role, err)
	}
	return n > 0, nil
}

// RemoveRole revokes role from userID and reports whether it was held.
func (s *Store) RemoveRole(ctx context.Context, role, userID string) (removed bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM role_members WHERE role = ? AND user_id = ?`, role, userID)
	if err != nil {
		return false, fmt.Errorf("store: remove role %q: %w", role, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: remove role %q: %w", role, err)
	}
	return n > 0, nil
}

// HasRole reports whether userID holds role.
func (s *Store) HasRole(ctx context.Context, role, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_members WHERE role = ? AND user_id = ?`, role, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check role %q: %w", role, err)
	}
	return n > 0, nil
}

// RoleMembers lists the holders of role in grant order.
func (s *Store) RoleMembers(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM role_members WHERE role = ? ORDER BY granted_at, user_id`, role)
	if err != nil {
		return nil, fmt.Errorf("store: list role %q: %w", role, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("store: scan role member: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
