package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
)

type CardRepo interface {
	FindOpenByPhone(ctx context.Context, phone string) (*domain.Card, error)
	GetByID(ctx context.Context, id int64) (*domain.Card, error)
	Create(ctx context.Context, phone string, startDate time.Time) (*domain.Card, error)
	GrantStamp(ctx context.Context, id int64, day time.Time) (*domain.Card, error)
	Close(ctx context.Context, id int64, endDate time.Time) (bool, error)
	CountStampEvents(ctx context.Context, cardID int64, since *time.Time) (int, error)
}

type CardRepoImpl struct{ pool *pgxpool.Pool }

func NewCardRepo(pool *pgxpool.Pool) *CardRepoImpl { return &CardRepoImpl{pool: pool} }

const cardCols = `id, card_number, phone, status, stamps,
start_date, end_date, last_stamp_date, created_at, updated_at`

func scanCard(row pgx.Row) (*domain.Card, error) {
	var c domain.Card
	err := row.Scan(
		&c.ID, &c.CardNumber, &c.Phone, &c.Status, &c.Stamps,
		&c.StartDate, &c.EndDate, &c.LastStampDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CardRepoImpl) FindOpenByPhone(ctx context.Context, phone string) (*domain.Card, error) {
	const q = `SELECT ` + cardCols + ` FROM cards WHERE phone=$1 AND status='open'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCard(r.pool.QueryRow(ctx, q, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CardRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Card, error) {
	const q = `SELECT ` + cardCols + ` FROM cards WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCard(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// Create opens a new card. The human-readable card number is taken from a
// database sequence and zero-padded to at least three digits; the partial
// unique index on (phone) WHERE status='open' rejects a concurrent second
// open card, which callers see as ErrDuplicatePhone on the index and should
// resolve by re-reading the open card.
func (r *CardRepoImpl) Create(ctx context.Context, phone string, startDate time.Time) (*domain.Card, error) {
	const q = `INSERT INTO cards (card_number, phone, status, stamps, start_date)
  VALUES ('T-' || lpad(nextval('card_number_seq')::text, 3, '0'), $1, 'open', 0, $2::date)
  RETURNING ` + cardCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCard(r.pool.QueryRow(ctx, q, phone, startDate))
	if isUniqueViolation(err) {
		return nil, domain.ErrDuplicatePhone
	}
	return c, err
}

// GrantStamp atomically adds one stamp for the given calendar day. The
// conditional update and the ledger insert run in one transaction; the row
// lock on the card plus the UNIQUE (card_id, stamp_date) ledger constraint
// make two same-day calls net exactly one stamp.
func (r *CardRepoImpl) GrantStamp(ctx context.Context, id int64, day time.Time) (*domain.Card, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const upd = `UPDATE cards
  SET stamps = stamps + 1, last_stamp_date = $2::date, updated_at = now()
  WHERE id = $1
    AND status = 'open'
    AND start_date <> $2::date
    AND (last_stamp_date IS NULL OR last_stamp_date <> $2::date)
  RETURNING ` + cardCols

	c, err := scanCard(tx.QueryRow(ctx, upd, id, day))
	if err == pgx.ErrNoRows {
		return nil, r.classifyGrantRejection(ctx, tx, id)
	}
	if err != nil {
		return nil, err
	}

	const ins = `INSERT INTO stamp_events (card_id, phone, stamp_date) VALUES ($1, $2, $3::date)`
	if _, err := tx.Exec(ctx, ins, c.ID, c.Phone, day); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyStampedToday
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// classifyGrantRejection distinguishes why the conditional update matched
// no rows: missing card, closed card, or the per-day rules.
func (r *CardRepoImpl) classifyGrantRejection(ctx context.Context, tx pgx.Tx, id int64) error {
	const q = `SELECT status, start_date, last_stamp_date FROM cards WHERE id=$1`

	var status domain.CardStatus
	var startDate time.Time
	var lastStampDate *time.Time
	err := tx.QueryRow(ctx, q, id).Scan(&status, &startDate, &lastStampDate)
	if err == pgx.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != domain.CardOpen {
		return domain.ErrCardClosed
	}
	// Open card, no update: either the registration-day lockout or the
	// per-day rule tripped (possibly via a concurrent grant that committed
	// between our update and this read).
	return domain.ErrAlreadyStampedToday
}

func (r *CardRepoImpl) Close(ctx context.Context, id int64, endDate time.Time) (bool, error) {
	const q = `UPDATE cards SET status='closed', end_date=$2::date, updated_at=now()
  WHERE id=$1 AND status='open'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, endDate)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// CountStampEvents tallies the ledger for a card, optionally only events on
// or after a cutoff date. The card counter is authoritative for display;
// this is the cross-check against the ledger.
func (r *CardRepoImpl) CountStampEvents(ctx context.Context, cardID int64, since *time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	var err error
	if since != nil {
		const q = `SELECT count(*) FROM stamp_events WHERE card_id=$1 AND stamp_date >= $2::date`
		err = r.pool.QueryRow(ctx, q, cardID, *since).Scan(&n)
	} else {
		const q = `SELECT count(*) FROM stamp_events WHERE card_id=$1`
		err = r.pool.QueryRow(ctx, q, cardID).Scan(&n)
	}
	return n, err
}

var _ CardRepo = (*CardRepoImpl)(nil)
