package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulseid/pulseid/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const userCols = `id, email, password_hash, full_name, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *RepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	q := `INSERT INTO users (id, email, password_hash, full_name, role, is_active, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, TRUE, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	q := "SELECT " + userCols + " FROM users WHERE id = $1"
	return scanUser(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	q := "SELECT " + userCols + " FROM users WHERE email = LOWER($1)"
	return scanUser(r.conn(ctx).QueryRow(ctx, q, email))
}

func (r *RepoPG) Update(ctx context.Context, u *User) error {
	q := `UPDATE users SET email = LOWER($2), full_name = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.conn(ctx).QueryRow(ctx, q, u.ID, u.Email, u.FullName, u.IsActive).Scan(&u.UpdatedAt)
}
