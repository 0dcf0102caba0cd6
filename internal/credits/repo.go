package credits

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindAvailable returns the newest purchase that still has credits.
	FindAvailable(ctx context.Context, userID string) (*models.HQPurchase, error)
	// Grant inserts a purchase; replays of the same checkout session are ignored.
	Grant(ctx context.Context, purchase *models.HQPurchase) (bool, error)
	// Decrement takes one credit from a purchase if it still has one.
	Decrement(ctx context.Context, purchase *models.HQPurchase) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindAvailable(ctx context.Context, userID string) (*models.HQPurchase, error) {
	var purchase models.HQPurchase
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND credits_remaining > 0", userID).
		Order("created_at DESC").
		First(&purchase).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repositoryImpl) Grant(ctx context.Context, purchase *models.HQPurchase) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_session_id"}}, DoNothing: true}).
		Create(purchase)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) Decrement(ctx context.Context, purchase *models.HQPurchase) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.HQPurchase{}).
		Where("id = ? AND credits_remaining > 0", purchase.ID).
		UpdateColumn("credits_remaining", gorm.Expr("credits_remaining - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
