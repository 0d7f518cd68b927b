// user_repository.go implements UserRepository, providing database queries for
// marketplace authors and API-token resolution.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user record. ID and CreatedAt are populated on the
// passed model.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, username, display_name, api_token, created_at)
		VALUES (:id, :username, :display_name, :api_token, :created_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by primary key. Returns (nil, nil) when not found.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByUsername retrieves a user by username. Returns (nil, nil) when not found.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "username = ?", username)
}

// GetByAPIToken resolves an API token to its user. Returns (nil, nil) when the
// token matches no user.
func (r *UserRepository) GetByAPIToken(ctx context.Context, token string) (*models.User, error) {
	return r.getOne(ctx, "api_token = ?", token)
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, username, display_name, api_token, created_at
		FROM users
		WHERE %s
	`, where)

	var user models.User
	err := r.db.GetContext(ctx, &user, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
