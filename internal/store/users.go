package store

import (
	"database/sql"
	"errors"

	"apec/internal/apperr"
	"apec/internal/models"
	"apec/internal/workflow"

	"github.com/google/uuid"
)

// CreateUser inserts a user plus its directory profile.
func (s *Store) CreateUser(u *models.User) error {
	u.ID = uuid.New().String()
	u.CreatedAt = now()

	_, err := s.db.Exec(
		`INSERT INTO users (id, email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO profiles (user_id, email, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.CreatedAt,
	)
	return err
}

func (s *Store) GetUser(id string) (*models.User, error) {
	return s.getUser(`SELECT id, email, password_hash, display_name, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	return s.getUser(`SELECT id, email, password_hash, display_name, created_at FROM users WHERE email = ?`, email)
}

func (s *Store) getUser(query, arg string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CountUsers() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// Sessions

func (s *Store) CreateSession(sess *models.Session) error {
	sess.CreatedAt = now()
	_, err := s.db.Exec(
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.ExpiresAt, sess.CreatedAt,
	)
	return err
}

func (s *Store) GetSessionByToken(token string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRow(
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session not found")
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (s *Store) DeleteUserSessions(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// Roles. A user has at most one role row; no row decodes to
// workflow.RoleInactive so every permission check sees an explicit
// value.

func (s *Store) GetRole(userID string) (workflow.Role, error) {
	var role string
	err := s.db.QueryRow(`SELECT role FROM user_roles WHERE user_id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.RoleInactive, nil
	}
	if err != nil {
		return workflow.RoleInactive, err
	}
	return workflow.ParseRole(role), nil
}

func (s *Store) SetRole(userID string, role workflow.Role) error {
	if role == workflow.RoleInactive {
		return s.RemoveRole(userID)
	}
	_, err := s.db.Exec(
		`INSERT INTO user_roles (user_id, role) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET role = excluded.role`,
		userID, string(role),
	)
	return err
}

// RemoveRole deactivates a user by dropping its role row.
func (s *Store) RemoveRole(userID string) error {
	_, err := s.db.Exec(`DELETE FROM user_roles WHERE user_id = ?`, userID)
	return err
}

// ListProfiles returns every user's directory entry joined with its
// role; users without a role row come back as inactive.
func (s *Store) ListProfiles() ([]models.Profile, error) {
	rows, err := s.db.Query(
		`SELECT p.user_id, p.email, p.display_name, COALESCE(r.role, ''), p.created_at
		FROM profiles p LEFT JOIN user_roles r ON r.user_id = p.user_id
		ORDER BY p.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		var p models.Profile
		var role string
		if err := rows.Scan(&p.UserID, &p.Email, &p.DisplayName, &role, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Role = string(workflow.ParseRole(role))
		out = append(out, p)
	}
	return out, rows.Err()
}
