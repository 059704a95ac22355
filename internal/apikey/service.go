// Package apikey provides API key provisioning and verification for
// machine clients. Keys are issued as "id.secret" and only the bcrypt
// hash of the secret is stored.
package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowline/api/internal/store"
	"flowline/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidKey = errors.New("invalid api key")

// Key is the public view of a provisioned API key.
type Key struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// KeyStore defines the storage interface for API keys
type KeyStore interface {
	InsertAPIKey(ctx context.Context, key store.APIKeyRecord) error
	GetAPIKey(ctx context.Context, id string) (store.APIKeyRecord, error)
	CountAPIKeys(ctx context.Context) (int, error)
}

// Service provisions and verifies API keys
type Service struct {
	store KeyStore
}

// NewService creates a new API key service
func NewService(store KeyStore) *Service {
	return &Service{store: store}
}

// Provision creates a key and returns the one-time plaintext "id.secret".
func (s *Service) Provision(ctx context.Context, name, role string) (Key, string, error) {
	if name == "" {
		return Key{}, "", errors.New("key name is required")
	}
	if role == "" {
		role = "editor"
	}

	id := util.NewID("key")
	secret := util.NewID("")

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Key{}, "", fmt.Errorf("hash secret: %w", err)
	}

	record := store.APIKeyRecord{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
		Role:       role,
		CreatedAt:  time.Now(),
	}
	if err := s.store.InsertAPIKey(ctx, record); err != nil {
		return Key{}, "", fmt.Errorf("insert api key: %w", err)
	}

	key := Key{ID: record.ID, Name: record.Name, Role: record.Role, CreatedAt: record.CreatedAt}
	return key, id + "." + secret, nil
}

// Verify checks a plaintext "id.secret" key and returns its metadata.
func (s *Service) Verify(ctx context.Context, plaintext string) (Key, error) {
	id, secret, ok := strings.Cut(plaintext, ".")
	if !ok || id == "" || secret == "" {
		return Key{}, ErrInvalidKey
	}

	record, err := s.store.GetAPIKey(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Key{}, ErrInvalidKey
	}
	if err != nil {
		return Key{}, fmt.Errorf("get api key: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.SecretHash), []byte(secret)); err != nil {
		return Key{}, ErrInvalidKey
	}

	return Key{ID: record.ID, Name: record.Name, Role: record.Role, CreatedAt: record.CreatedAt}, nil
}

// HasKeys reports whether any API keys exist yet.
func (s *Service) HasKeys(ctx context.Context) (bool, error) {
	count, err := s.store.CountAPIKeys(ctx)
	if err != nil {
		return false, fmt.Errorf("count api keys: %w", err)
	}
	return count > 0, nil
}
