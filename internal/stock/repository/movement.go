package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// Movement types
const (
	MovementReceipt     = "receipt"
	MovementUsage       = "usage"
	MovementAdjustment  = "adjustment"
	MovementTransferIn  = "transfer_in"
	MovementTransferOut = "transfer_out"
	MovementCount       = "count"
	MovementWaste       = "waste"
	MovementReserve     = "reserve"
	MovementRelease     = "release"
)

// StockMovement is one immutable quantity change. Rows are append-only;
// no update or delete path exists. The seq column orders the journal:
// created_at ties within one transaction, seq never does.
type StockMovement struct {
	ID             string    `db:"id" json:"id"`
	Seq            int64     `db:"seq" json:"-"`
	ProductID      string    `db:"product_id" json:"product_id"`
	LocationID     string    `db:"location_id" json:"location_id"`
	BatchID        *string   `db:"batch_id" json:"batch_id,omitempty"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	Quantity       int       `db:"quantity" json:"quantity"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	ReferenceID    *string   `db:"reference_id" json:"reference_id,omitempty"`
	TransferPairID *string   `db:"transfer_pair_id" json:"transfer_pair_id,omitempty"`
	PerformedBy    *string   `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MovementFilter narrows a history query
type MovementFilter struct {
	MovementType string
	From         *time.Time
	To           *time.Time
}

// MovementRepository handles the append-only movement journal
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Insert appends a movement. Must run inside the transaction that updated
// the stock level so the before/after pair is captured atomically.
func (r *MovementRepository) Insert(ctx context.Context, m *StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (
			id, product_id, location_id, batch_id, movement_type, quantity,
			quantity_before, quantity_after, reason, reference_id, transfer_pair_id, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.ProductID, m.LocationID, m.BatchID, m.MovementType, m.Quantity,
		m.QuantityBefore, m.QuantityAfter, m.Reason, m.ReferenceID, m.TransferPairID, m.PerformedBy,
	).Scan(&m.Seq, &m.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Latest returns the most recent movement for a (product, location) key.
// The ledger reads this inside its transaction to enforce the chain
// invariant: each movement's before must equal the previous one's after.
func (r *MovementRepository) Latest(ctx context.Context, productID, locationID string) (*StockMovement, error) {
	var m StockMovement
	query := `
		SELECT * FROM stock_movements
		WHERE product_id = $1 AND location_id = $2
		ORDER BY seq DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &m, query, productID, locationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// History lists movements for a (product, location) key, newest first, with
// keyset pagination. The returned cursor is opaque; pass it back to resume.
func (r *MovementRepository) History(ctx context.Context, productID, locationID string, limit int, cursor string, filter MovementFilter) ([]*StockMovement, string, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, "", err
	}

	if limit < 1 || limit > 200 {
		limit = 50
	}

	where := `product_id = $1 AND location_id = $2`
	args := []interface{}{productID, locationID}

	if filter.MovementType != "" {
		args = append(args, filter.MovementType)
		where += fmt.Sprintf(` AND movement_type = $%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	if cursor != "" {
		seq, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", errors.BadRequest("invalid history cursor")
		}
		args = append(args, seq)
		where += fmt.Sprintf(` AND seq < $%d`, len(args))
	}

	args = append(args, limit+1)
	query := fmt.Sprintf(`
		SELECT * FROM stock_movements
		WHERE %s
		ORDER BY seq DESC
		LIMIT $%d
	`, where, len(args))

	var movements []*StockMovement
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &movements, query, args...)
	})
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(movements) > limit {
		movements = movements[:limit]
		last := movements[len(movements)-1]
		nextCursor = encodeCursor(last.Seq)
	}

	return movements, nextCursor, nil
}

func encodeCursor(seq int64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

func decodeCursor(cursor string) (int64, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}
