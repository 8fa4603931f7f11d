package system

import (
	"context"
	"errors"
	"testing"
)

// recordingService notes lifecycle calls in a shared log.
type recordingService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	*s.log = append(*s.log, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop:"+s.name)
	return s.stopErr
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var log []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "dup", log: &log}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", log: &log}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}

func TestManagerUnwindsOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	boom := errors.New("boom")
	_ = m.Register(&recordingService{name: "a", log: &log})
	_ = m.Register(&recordingService{name: "b", log: &log, startErr: boom})
	_ = m.Register(&recordingService{name: "c", log: &log})

	err := m.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected start failure, got %v", err)
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerRejectsRegisterAfterStart(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(&recordingService{name: "a", log: &log})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "late"}); err == nil {
		t.Fatal("expected registration after start to fail")
	}
}
