package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
)

type CustomerRepo interface {
	FindByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	Create(ctx context.Context, name, phone string) (*domain.Customer, error)
}

type CustomerRepoImpl struct{ pool *pgxpool.Pool }

func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepoImpl { return &CustomerRepoImpl{pool: pool} }

const customerCols = `id, name, phone, created_at`

func (r *CustomerRepoImpl) FindByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	const q = `SELECT ` + customerCols + ` FROM customers WHERE phone=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Customer
	err := r.pool.QueryRow(ctx, q, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

func (r *CustomerRepoImpl) Create(ctx context.Context, name, phone string) (*domain.Customer, error) {
	const q = `INSERT INTO customers (name, phone) VALUES ($1, $2) RETURNING ` + customerCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Customer
	err := r.pool.QueryRow(ctx, q, name, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if isUniqueViolation(err) {
		return nil, domain.ErrDuplicatePhone
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ CustomerRepo = (*CustomerRepoImpl)(nil)
