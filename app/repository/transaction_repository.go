package repository

import (
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"gorm.io/gorm"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

func (r *transactionRepository) GetByID(id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("id = ?", id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) GetByGatewayRef(ref string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("gateway_ref = ?", ref).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) SetGatewayRef(id, ref string) error {
	return r.db.Model(&models.Transaction{}).Where("id = ?", id).
		Update("gateway_ref", ref).Error
}

// MarkCompleted performs the conditional pending -> completed transition.
// The WHERE clause on status makes two racing callers (poll and callback)
// serialize at the database: exactly one sees RowsAffected == 1.
func (r *transactionRepository) MarkCompleted(id string, completedAt time.Time) (bool, error) {
	tx := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":       models.TransactionStatusCompleted,
			"completed_at": &completedAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkFailed performs the conditional pending -> failed transition.
func (r *transactionRepository) MarkFailed(id, reason string) (bool, error) {
	tx := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":         models.TransactionStatusFailed,
			"failure_reason": reason,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *transactionRepository) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []models.Transaction
	err := r.db.
		Where("status = ? AND created_at < ?", models.TransactionStatusPending, cutoff).
		Order("created_at ASC").Limit(limit).Find(&txs).Error
	return txs, err
}

// ListUnactivatedCompleted returns completed transactions that never got an
// activation written, oldest completion first. These are the rows the sweeper
// heals after a crash or store error between the ledger transition and the
// entitlement write.
func (r *transactionRepository) ListUnactivatedCompleted(limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []models.Transaction
	err := r.db.
		Joins("LEFT JOIN feature_activations ON feature_activations.transaction_id = transactions.id").
		Where("transactions.status = ? AND feature_activations.id IS NULL",
			models.TransactionStatusCompleted).
		Order("transactions.completed_at ASC").Limit(limit).Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) ListByUser(userID uint, offset, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var txs []models.Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&txs).Error
	return txs, err
}
