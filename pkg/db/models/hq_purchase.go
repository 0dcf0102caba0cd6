package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HQPurchase is a one-off purchase of high-quality export credits.
type HQPurchase struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID                string    `gorm:"column:user_id;not null;index"`
	StripeSessionID       string    `gorm:"column:stripe_session_id;not null;uniqueIndex"`
	StripePaymentIntentID *string   `gorm:"column:stripe_payment_intent_id"`
	CreditsRemaining      int       `gorm:"column:credits_remaining;not null;default:1"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (HQPurchase) TableName() string { return "hq_purchases" }

func (p *HQPurchase) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
