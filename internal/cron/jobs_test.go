package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

type fakeSweeper struct {
	result *notifications.SweepResult
	err    error
	calls  int
}

func (f *fakeSweeper) Sweep(context.Context) (*notifications.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeCleaner struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

func TestNotificationSweepJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{result: &notifications.SweepResult{
		Processed: 2,
		Results:   []notifications.SweepItem{{JobID: "a", Status: "sent"}, {JobID: "b", Status: "job_failed"}},
	}}
	job, err := NewNotificationSweepJob(NotificationSweepJobParams{Logger: logger.Discard(), Sweeper: sweeper})
	if err != nil {
		t.Fatalf("NewNotificationSweepJob: %v", err)
	}
	if job.Name() != "notification-sweep" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestNotificationSweepJobReportsPartialFailure(t *testing.T) {
	sweeper := &fakeSweeper{
		result: &notifications.SweepResult{Processed: 1, Results: []notifications.SweepItem{{JobID: "a", Status: "error"}}},
		err:    errors.New("job a: status unavailable"),
	}
	job, err := NewNotificationSweepJob(NotificationSweepJobParams{Logger: logger.Discard(), Sweeper: sweeper})
	if err != nil {
		t.Fatalf("NewNotificationSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFreeFileCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 4}
	job, err := NewFreeFileCleanupJob(FreeFileCleanupJobParams{Logger: logger.Discard(), Cleaner: cleaner})
	if err != nil {
		t.Fatalf("NewFreeFileCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cleaner.calls != 1 {
		t.Fatalf("expected one cleanup, got %d", cleaner.calls)
	}

	cleaner.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	if _, err := NewNotificationSweepJob(NotificationSweepJobParams{Logger: logger.Discard()}); err == nil {
		t.Fatal("expected sweeper error")
	}
	if _, err := NewFreeFileCleanupJob(FreeFileCleanupJobParams{Logger: logger.Discard()}); err == nil {
		t.Fatal("expected cleaner error")
	}
}
