package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/models"
)

// UserStore provides account lookups for authentication and ownership.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = "user-" + uuid.New().String()[:8]
	}
	user.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Active, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByUsername(username string) (*models.User, error) {
	row := s.db.QueryRow(`
		SELECT id, username, email, password_hash, is_active, created_at
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

func (s *UserStore) Get(id string) (*models.User, error) {
	row := s.db.QueryRow(`
		SELECT id, username, email, password_hash, is_active, created_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// Count reports how many accounts exist, used for first-run bootstrap.
func (s *UserStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Active, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
