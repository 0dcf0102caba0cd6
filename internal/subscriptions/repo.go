package subscriptions

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
)

// Repository exposes persistence helpers for subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
	Upsert(ctx context.Context, sub *models.Subscription) error
	UpdateByCustomer(ctx context.Context, customerID string, updates map[string]any) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a subscriptions repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// FindByUserID returns nil without error when the user never subscribed.
func (r *repositoryImpl) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *repositoryImpl) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repositoryImpl) first(ctx context.Context, query string, args ...any) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where(query, args...).First(&sub).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert inserts or overwrites the billing fields of the user's subscription.
func (r *repositoryImpl) Upsert(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id",
			"stripe_subscription_id",
			"stripe_price_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (r *repositoryImpl) UpdateByCustomer(ctx context.Context, customerID string, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
