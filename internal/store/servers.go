package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/models"
)

// ServerStore provides CRUD for managed servers.
type ServerStore struct {
	db *sql.DB
}

func NewServerStore(db *sql.DB) *ServerStore {
	return &ServerStore{db: db}
}

// Create inserts a server and assigns its ID.
func (s *ServerStore) Create(server *models.Server) error {
	if server.ID == "" {
		server.ID = "srv-" + uuid.New().String()[:8]
	}
	if server.Port == 0 {
		server.Port = 22
	}

	now := time.Now().UTC()
	server.CreatedAt = now
	server.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO servers (id, name, host, port, username, auth_method, encrypted_credential,
		                     online, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, server.ID, server.Name, server.Host, server.Port, server.Username, string(server.AuthMethod),
		server.EncryptedCredential, server.Online, server.OwnerID, server.CreatedAt, server.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert server: %w", err)
	}
	return nil
}

func (s *ServerStore) Get(id string) (*models.Server, error) {
	row := s.db.QueryRow(`
		SELECT id, name, host, port, username, auth_method, encrypted_credential,
		       online, owner_id, last_checked_at, created_at, updated_at
		FROM servers WHERE id = ?
	`, id)
	return scanServer(row)
}

func (s *ServerStore) List() ([]*models.Server, error) {
	rows, err := s.db.Query(`
		SELECT id, name, host, port, username, auth_method, encrypted_credential,
		       online, owner_id, last_checked_at, created_at, updated_at
		FROM servers ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// Update persists mutable server fields. The encrypted credential is only
// rewritten when a non-empty blob is supplied.
func (s *ServerStore) Update(server *models.Server) error {
	server.UpdatedAt = time.Now().UTC()

	if len(server.EncryptedCredential) > 0 {
		_, err := s.db.Exec(`
			UPDATE servers
			SET name = ?, host = ?, port = ?, username = ?, auth_method = ?,
			    encrypted_credential = ?, updated_at = ?
			WHERE id = ?
		`, server.Name, server.Host, server.Port, server.Username, string(server.AuthMethod),
			server.EncryptedCredential, server.UpdatedAt, server.ID)
		if err != nil {
			return fmt.Errorf("failed to update server: %w", err)
		}
		return nil
	}

	_, err := s.db.Exec(`
		UPDATE servers
		SET name = ?, host = ?, port = ?, username = ?, auth_method = ?, updated_at = ?
		WHERE id = ?
	`, server.Name, server.Host, server.Port, server.Username, string(server.AuthMethod),
		server.UpdatedAt, server.ID)
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	return nil
}

// SetHealth records the outcome of a connectivity check. It runs after
// every check regardless of the result.
func (s *ServerStore) SetHealth(id string, online bool, checkedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE servers SET online = ?, last_checked_at = ? WHERE id = ?
	`, online, checkedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update server health: %w", err)
	}
	return nil
}

func (s *ServerStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	var (
		server      models.Server
		authMethod  string
		lastChecked sql.NullTime
	)

	err := row.Scan(&server.ID, &server.Name, &server.Host, &server.Port, &server.Username,
		&authMethod, &server.EncryptedCredential, &server.Online, &server.OwnerID,
		&lastChecked, &server.CreatedAt, &server.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("server not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan server: %w", err)
	}

	server.AuthMethod = models.AuthMethod(authMethod)
	if lastChecked.Valid {
		server.LastCheckedAt = &lastChecked.Time
	}
	return &server, nil
}
