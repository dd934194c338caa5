package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trakkie-id/paynow/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("transaction not found")
	ErrAlreadyProcessed = errors.New("transaction already processed")
	ErrPersist          = errors.New("could not persist transaction")
)

// Ledger owns the persisted transaction rows.
type Ledger interface {
	Create(ctx context.Context, trx *model.Transaction) (uint, error)
	Lookup(ctx context.Context, id uint) (*model.Transaction, error)
	Update(ctx context.Context, trx *model.Transaction) error
	MarkAwaiting(ctx context.Context, id uint) error
	List(ctx context.Context, userID uint, limit int) ([]model.Transaction, error)
}

type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Create inserts trx and returns the id assigned by the database.
func (l *GormLedger) Create(ctx context.Context, trx *model.Transaction) (uint, error) {
	if trx.ID != 0 {
		return 0, fmt.Errorf("%w: id %d already assigned", ErrPersist, trx.ID)
	}
	if trx.TransactionStatus == "" {
		trx.TransactionStatus = model.TrxCreated
	}

	res := l.db.WithContext(ctx).Create(trx)
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersist, res.Error)
	}

	return trx.ID, nil
}

func (l *GormLedger) Lookup(ctx context.Context, id uint) (*model.Transaction, error) {
	trx := &model.Transaction{}
	res := l.db.WithContext(ctx).First(trx, id)

	// check error ErrRecordNotFound
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	} else if res.Error != nil {
		return nil, fmt.Errorf("lookup transaction %d: %w", id, res.Error)
	}

	return trx, nil
}

// Update replaces the mutable columns of trx. The write only applies while the
// stored outcome block is still empty, so of two concurrent reconciliations
// exactly one succeeds and the other gets ErrAlreadyProcessed.
func (l *GormLedger) Update(ctx context.Context, trx *model.Transaction) error {
	if trx.ProcessedAt == nil {
		now := time.Now()
		trx.ProcessedAt = &now
	}

	res := l.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND processed_at IS NULL", trx.ID).
		Updates(outcomeColumns(trx))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersist, res.Error)
	}

	if res.RowsAffected == 1 {
		return nil
	}

	// Nothing matched: either the row is gone or somebody else won.
	if _, err := l.Lookup(ctx, trx.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: id %d", ErrAlreadyProcessed, trx.ID)
}

// MarkAwaiting records that the payer was handed over to the gateway.
func (l *GormLedger) MarkAwaiting(ctx context.Context, id uint) error {
	res := l.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND trx_status = ?", id, model.TrxCreated).
		Update("trx_status", model.TrxAwaitingGateway)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersist, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := l.Lookup(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// List returns the most recent transactions of a user, newest first. userID 0
// lists every user.
func (l *GormLedger) List(ctx context.Context, userID uint, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := l.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if userID != 0 {
		query = query.Where(&model.Transaction{UserID: userID})
	}

	var trxs []model.Transaction
	if res := query.Find(&trxs); res.Error != nil {
		return nil, fmt.Errorf("list transactions: %w", res.Error)
	}
	return trxs, nil
}

func outcomeColumns(trx *model.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"trx_status":     trx.TransactionStatus,
		"success":        trx.Success,
		"response":       trx.Response,
		"auth_code":      trx.AuthCode,
		"card_type":      trx.CardType,
		"card_holder":    trx.CardHolder,
		"card_number":    trx.CardNumber,
		"card_expiry":    trx.CardExpiry,
		"client_info":    trx.ClientInfo,
		"paynow_txn_ref": trx.PaynowTxnRef,
		"txn_mac":        trx.TxnMac,
		"gateway_reply":  trx.GatewayReply,
		"txn_data3":      trx.TxnData3,
		"processed_at":   trx.ProcessedAt,
	}
}
