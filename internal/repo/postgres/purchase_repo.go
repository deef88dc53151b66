package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
)

var (
	ErrPurchaseNotFound  = errors.New("purchase not found")
	ErrChainTxConflict   = errors.New("chain tx already recorded for another purchase")
	ErrPurchaseNotFinal  = errors.New("purchase is not in a refundable state")
	ErrInvalidTransition = errors.New("purchase transition rejected")
)

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

const purchaseColumns = `
	id,
	buyer_id,
	item_id,
	amount,
	platform_fee,
	payee_payout,
	rail,
	rail_network,
	correlation_ref,
	chain_tx_ref,
	status,
	created_at`

// PendingRow is one ledger row to open for a checkout. Fee and payout are
// computed by the caller; the repo only persists them.
type PendingRow struct {
	BuyerID     int64
	ItemID      string
	Amount      int64
	PlatformFee int64
	PayeePayout int64
	Rail        enums.Rail
	RailNetwork *string
}

// InsertPending opens one pending row per item in a single transaction, so a
// cart never ends up half-recorded. Correlation refs are attached separately
// once the provider call succeeds.
func (r *PurchaseRepo) InsertPending(ctx context.Context, rows []PendingRow) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to insert")
	}
	for _, row := range rows {
		if row.BuyerID <= 0 || strings.TrimSpace(row.ItemID) == "" || row.Amount <= 0 || !row.Rail.Valid() {
			return nil, fmt.Errorf("invalid pending row payload")
		}
		if row.PlatformFee+row.PayeePayout != row.Amount {
			return nil, fmt.Errorf("fee split does not conserve amount")
		}
	}

	out := make([]model.Purchase, 0, len(rows))
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		for _, row := range rows {
			rec, err := scanPurchase(tx.QueryRow(txCtx, `
INSERT INTO purchases (
	id,
	buyer_id,
	item_id,
	amount,
	platform_fee,
	payee_payout,
	rail,
	rail_network,
	status,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', NOW())
RETURNING`+purchaseColumns,
				uuid.NewString(),
				row.BuyerID,
				strings.TrimSpace(row.ItemID),
				row.Amount,
				row.PlatformFee,
				row.PayeePayout,
				string(row.Rail),
				row.RailNetwork,
			))
			if err != nil {
				return fmt.Errorf("insert pending purchase: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// AttachCorrelation binds the provider intent id to freshly opened rows. Only
// pending rows without a ref already bound are touched.
func (r *PurchaseRepo) AttachCorrelation(ctx context.Context, ids []string, rail enums.Rail, ref string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	ref = strings.TrimSpace(ref)
	if len(ids) == 0 || ref == "" || !rail.Valid() {
		return fmt.Errorf("invalid attach correlation payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET correlation_ref = $3
WHERE id = ANY($1)
  AND rail = $2
  AND status = 'pending'
  AND correlation_ref IS NULL
`, ids, string(rail), ref)
	if err != nil {
		return fmt.Errorf("attach correlation ref: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return ErrInvalidTransition
	}

	return nil
}

// CompleteByCorrelation flips every pending row matching (rail, ref) to
// completed in one statement. Replayed deliveries match zero rows and return
// an empty slice.
func (r *PurchaseRepo) CompleteByCorrelation(ctx context.Context, rails []enums.Rail, ref string, chainTxRef *string) ([]model.Purchase, error) {
	return r.settleByCorrelation(ctx, rails, ref, enums.PurchaseStatusCompleted, chainTxRef)
}

// FailByCorrelation is the failure-path twin of CompleteByCorrelation.
func (r *PurchaseRepo) FailByCorrelation(ctx context.Context, rails []enums.Rail, ref string) ([]model.Purchase, error) {
	return r.settleByCorrelation(ctx, rails, ref, enums.PurchaseStatusFailed, nil)
}

func (r *PurchaseRepo) settleByCorrelation(
	ctx context.Context,
	rails []enums.Rail,
	ref string,
	status enums.PurchaseStatus,
	chainTxRef *string,
) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" || len(rails) == 0 {
		return nil, fmt.Errorf("invalid settle payload")
	}
	if status != enums.PurchaseStatusCompleted && status != enums.PurchaseStatusFailed {
		return nil, ErrInvalidTransition
	}

	rows, err := r.pool.Query(ctx, `
UPDATE purchases
SET
	status = $3,
	chain_tx_ref = COALESCE($4, chain_tx_ref)
WHERE rail = ANY($1)
  AND correlation_ref = $2
  AND status = 'pending'
RETURNING`+purchaseColumns, railStrings(rails), ref, string(status), chainTxRef)
	if err != nil {
		return nil, fmt.Errorf("settle purchases by correlation: %w", err)
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settled purchase: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read settled purchases: %w", err)
	}

	return out, nil
}

// FailByIDs fails still-pending rows by id. Used when the provider call after
// row insertion fails, so no pending row outlives a dead intent.
func (r *PurchaseRepo) FailByIDs(ctx context.Context, ids []string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET status = 'failed'
WHERE id = ANY($1)
  AND status = 'pending'
`, ids)
	if err != nil {
		return 0, fmt.Errorf("fail purchases by ids: %w", err)
	}

	return tag.RowsAffected(), nil
}

// InsertCompleted records an already-settled purchase, deduplicated on
// (rail, chain_tx_ref). The second record attempt for the same signature
// returns the existing row with created=false.
func (r *PurchaseRepo) InsertCompleted(ctx context.Context, row PendingRow, chainTxRef string) (model.Purchase, bool, error) {
	if r.pool == nil {
		return model.Purchase{}, false, fmt.Errorf("postgres pool is nil")
	}
	chainTxRef = strings.TrimSpace(chainTxRef)
	if row.BuyerID <= 0 || strings.TrimSpace(row.ItemID) == "" || row.Amount <= 0 || !row.Rail.Valid() || chainTxRef == "" {
		return model.Purchase{}, false, fmt.Errorf("invalid completed row payload")
	}
	if row.PlatformFee+row.PayeePayout != row.Amount {
		return model.Purchase{}, false, fmt.Errorf("fee split does not conserve amount")
	}

	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	id,
	buyer_id,
	item_id,
	amount,
	platform_fee,
	payee_payout,
	rail,
	rail_network,
	chain_tx_ref,
	status,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'completed', NOW())
RETURNING`+purchaseColumns,
		uuid.NewString(),
		row.BuyerID,
		strings.TrimSpace(row.ItemID),
		row.Amount,
		row.PlatformFee,
		row.PayeePayout,
		string(row.Rail),
		row.RailNetwork,
		chainTxRef,
	))
	if err == nil {
		return rec, true, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return model.Purchase{}, false, fmt.Errorf("insert completed purchase: %w", err)
	}

	existing, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE rail = $1
  AND chain_tx_ref = $2
LIMIT 1
`, string(row.Rail), chainTxRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, false, ErrChainTxConflict
		}
		return model.Purchase{}, false, fmt.Errorf("find purchase by chain tx: %w", err)
	}

	return existing, false, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, id string) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, fmt.Errorf("postgres pool is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Purchase{}, fmt.Errorf("purchase id is required")
	}

	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE id = $1
LIMIT 1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, fmt.Errorf("find purchase by id: %w", err)
	}

	return rec, nil
}

func (r *PurchaseRepo) FindByCorrelation(ctx context.Context, rails []enums.Rail, ref string) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" || len(rails) == 0 {
		return nil, fmt.Errorf("invalid correlation lookup payload")
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE rail = ANY($1)
  AND correlation_ref = $2
ORDER BY created_at
`, railStrings(rails), ref)
	if err != nil {
		return nil, fmt.Errorf("find purchases by correlation: %w", err)
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read purchases: %w", err)
	}

	return out, nil
}

// FailStalePending fails pending rows on the given rails older than the
// cutoff. The failed rows are returned so the caller can count them.
func (r *PurchaseRepo) FailStalePending(ctx context.Context, rails []enums.Rail, cutoff time.Time) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(rails) == 0 || cutoff.IsZero() {
		return nil, fmt.Errorf("invalid stale sweep payload")
	}

	rows, err := r.pool.Query(ctx, `
UPDATE purchases
SET status = 'failed'
WHERE rail = ANY($1)
  AND status = 'pending'
  AND created_at < $2
RETURNING`+purchaseColumns, railStrings(rails), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("fail stale pending purchases: %w", err)
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale purchase: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stale purchases: %w", err)
	}

	return out, nil
}

// Refund moves a completed row to refunded. No live flow calls this; the
// guard exists so nothing else can ever reach the refunded state.
func (r *PurchaseRepo) Refund(ctx context.Context, id string) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, fmt.Errorf("postgres pool is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Purchase{}, fmt.Errorf("purchase id is required")
	}

	rec, err := scanPurchase(r.pool.QueryRow(ctx, `
UPDATE purchases
SET status = 'refunded'
WHERE id = $1
  AND status = 'completed'
RETURNING`+purchaseColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, ErrPurchaseNotFinal
		}
		return model.Purchase{}, fmt.Errorf("refund purchase: %w", err)
	}

	return rec, nil
}

func scanPurchase(row pgx.Row) (model.Purchase, error) {
	var (
		rec    model.Purchase
		rail   string
		status string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.BuyerID,
		&rec.ItemID,
		&rec.Amount,
		&rec.PlatformFee,
		&rec.PayeePayout,
		&rail,
		&rec.RailNetwork,
		&rec.CorrelationRef,
		&rec.ChainTxRef,
		&status,
		&rec.CreatedAt,
	); err != nil {
		return model.Purchase{}, err
	}
	rec.Rail = enums.Rail(rail)
	rec.Status = enums.PurchaseStatus(status)
	return rec, nil
}

func railStrings(rails []enums.Rail) []string {
	out := make([]string, 0, len(rails))
	for _, rail := range rails {
		out = append(out, string(rail))
	}
	return out
}
