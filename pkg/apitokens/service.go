package apitokens

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookstore/pkg/errcodes"
	"github.com/uptrace/bun"
)

const (
	keyPrefix     = "tk_"
	maxNameLength = 100
)

var ErrNotFound = errors.New("api token not found")

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// generateKey creates a cryptographically secure random token.
func generateKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.WithStack(err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// Create issues a new token. The key is only ever shown on creation by the
// CLI, but it is stored as-is so that lookups stay a single indexed query.
func (s *Service) Create(ctx context.Context, name string) (*APIToken, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errcodes.ValidationError("token name cannot be empty")
	}
	if len(name) > maxNameLength {
		return nil, errcodes.ValidationError(fmt.Sprintf("token name must be at most %d characters", maxNameLength))
	}

	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	token := &APIToken{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		CreatedAt: time.Now(),
	}

	_, err = s.db.NewInsert().Model(token).Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("api token created", logger.Data{"token_id": token.ID, "name": token.Name})
	return token, nil
}

// List returns every token, oldest first.
func (s *Service) List(ctx context.Context) ([]*APIToken, error) {
	tokens := []*APIToken{}
	err := s.db.NewSelect().
		Model(&tokens).
		Order("at.created_at ASC", "at.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return tokens, nil
}

// GetByKey returns the token with the given key, or nil if there is none.
func (s *Service) GetByKey(ctx context.Context, key string) (*APIToken, error) {
	token := new(APIToken)
	err := s.db.NewSelect().
		Model(token).
		Where("at.key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return token, nil
}

// Revoke deletes a token by id.
func (s *Service) Revoke(ctx context.Context, id string) error {
	result, err := s.db.NewDelete().
		Model((*APIToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	logger.FromContext(ctx).Info("api token revoked", logger.Data{"token_id": id})
	return nil
}

// Touch records that a token was just used.
func (s *Service) Touch(ctx context.Context, id string) error {
	_, err := s.db.NewUpdate().
		Model((*APIToken)(nil)).
		Set("last_used_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}
