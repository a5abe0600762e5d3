package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	started bool
	stopped bool
	failOn  string
	order   *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	if s.failOn == "start" {
		return errors.New("boom")
	}
	s.started = true
	*s.order = append(*s.order, "start:"+s.name)
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	s.stopped = true
	*s.order = append(*s.order, "stop:"+s.name)
	if s.failOn == "stop" {
		return errors.New("boom")
	}
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var order []string
	m := NewManager()
	a := &recordingService{name: "a", order: &order}
	b := &recordingService{name: "b", order: &order}
	for _, svc := range []*recordingService{a, b} {
		if err := m.Register(svc); err != nil {
			t.Fatalf("register %s: %v", svc.name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(order) != len(want) {
		t.Fatalf("order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var order []string
	m := NewManager()
	ok := &recordingService{name: "ok", order: &order}
	bad := &recordingService{name: "bad", failOn: "start", order: &order}
	_ = m.Register(ok)
	_ = m.Register(bad)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !ok.stopped {
		t.Fatal("previously started service was not stopped")
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "x"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "x"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
