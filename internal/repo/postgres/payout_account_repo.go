package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPayoutAccountNotFound = errors.New("payout account not found")

type PayoutAccountRepo struct {
	pool *pgxpool.Pool
}

type PayoutAccountRecord struct {
	PayeeID    int64
	AccountRef string
	CreatedAt  time.Time
}

func NewPayoutAccountRepo(pool *pgxpool.Pool) *PayoutAccountRepo {
	return &PayoutAccountRepo{pool: pool}
}

// Ensure creates the payee's payout account on first onboarding and is a
// no-op on repeat calls. The stored account ref never changes once set.
func (r *PayoutAccountRepo) Ensure(ctx context.Context, payeeID int64, accountRef string) (PayoutAccountRecord, bool, error) {
	if r.pool == nil {
		return PayoutAccountRecord{}, false, fmt.Errorf("postgres pool is nil")
	}
	accountRef = strings.TrimSpace(accountRef)
	if payeeID <= 0 || accountRef == "" {
		return PayoutAccountRecord{}, false, fmt.Errorf("invalid payout account payload")
	}

	var rec PayoutAccountRecord
	err := r.pool.QueryRow(ctx, `
INSERT INTO payout_accounts (payee_id, account_ref, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (payee_id) DO NOTHING
RETURNING payee_id, account_ref, created_at
`, payeeID, accountRef).Scan(&rec.PayeeID, &rec.AccountRef, &rec.CreatedAt)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PayoutAccountRecord{}, false, fmt.Errorf("ensure payout account: %w", err)
	}

	existing, err := r.FindByPayee(ctx, payeeID)
	if err != nil {
		return PayoutAccountRecord{}, false, err
	}
	return existing, false, nil
}

func (r *PayoutAccountRepo) FindByPayee(ctx context.Context, payeeID int64) (PayoutAccountRecord, error) {
	if r.pool == nil {
		return PayoutAccountRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if payeeID <= 0 {
		return PayoutAccountRecord{}, fmt.Errorf("invalid payee id")
	}

	var rec PayoutAccountRecord
	err := r.pool.QueryRow(ctx, `
SELECT payee_id, account_ref, created_at
FROM payout_accounts
WHERE payee_id = $1
LIMIT 1
`, payeeID).Scan(&rec.PayeeID, &rec.AccountRef, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayoutAccountRecord{}, ErrPayoutAccountNotFound
		}
		return PayoutAccountRecord{}, fmt.Errorf("find payout account: %w", err)
	}

	return rec, nil
}
