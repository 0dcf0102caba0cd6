package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "notification-sweep"}, nil, &stubJob{name: "free-file-cleanup"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	names := registry.Names()
	if len(names) != 2 || names[0] != "notification-sweep" || names[1] != "free-file-cleanup" {
		t.Fatalf("unexpected names %v", names)
	}
	jobs := registry.Jobs()
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}
