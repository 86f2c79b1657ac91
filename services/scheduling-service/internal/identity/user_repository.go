package identity

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/nasir-uddin/theragrid/libs/db"
)

// Operator accounts are seeded by migrations; there is no signup flow.
type User struct {
	ID           string
	BranchID     string
	Email        string
	PasswordHash string
	Role         string
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(branch_id::text, ''), email, password_hash, role
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.BranchID, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(branch_id::text, ''), email, password_hash, role
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.BranchID, &user.Email, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
