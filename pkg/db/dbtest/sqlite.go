// Package dbtest opens throwaway sqlite databases that mirror the Postgres
// schema closely enough for repository tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE usage_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		ip_hash TEXT,
		job_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		CHECK (user_id IS NOT NULL OR ip_hash IS NOT NULL)
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		stripe_customer_id TEXT NOT NULL,
		stripe_subscription_id TEXT UNIQUE,
		stripe_price_id TEXT,
		status TEXT NOT NULL DEFAULT 'inactive',
		current_period_start DATETIME,
		current_period_end DATETIME,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE subscriber_files (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		object_key TEXT NOT NULL,
		url TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT 'input',
		job_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE job_notifications (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL DEFAULT 'mastering',
		email TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		download_url TEXT,
		video_title TEXT,
		email_sent_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE email_logs (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		subject TEXT NOT NULL,
		type TEXT NOT NULL,
		provider_id TEXT,
		status TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE hq_purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		stripe_session_id TEXT NOT NULL UNIQUE,
		stripe_payment_intent_id TEXT,
		credits_remaining INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE premium_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		job_id TEXT NOT NULL UNIQUE,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE free_user_files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		download_url TEXT,
		status TEXT NOT NULL DEFAULT 'processing',
		expires_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
}

// Open returns an isolated in-memory database with every application table.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
