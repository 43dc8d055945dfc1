package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockBackendPinger struct {
	err error
}

func (m *mockBackendPinger) Ping(_ context.Context) error { return m.err }

type mockProviderChecker struct {
	err error
}

func (m *mockProviderChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockBackendPinger{}, &mockProviderChecker{}, &mockProviderChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"backend", "embedding", "scoring"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
}

func TestCheck_BackendError(t *testing.T) {
	svc := New(&mockBackendPinger{err: errors.New("conn refused")}, &mockProviderChecker{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["backend"] != CheckError {
		t.Errorf("expected backend %q, got %q", CheckError, r.Checks["backend"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_EmbeddingError(t *testing.T) {
	svc := New(&mockBackendPinger{}, &mockProviderChecker{err: errors.New("timeout")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["backend"] != CheckOK {
		t.Errorf("expected backend %q, got %q", CheckOK, r.Checks["backend"])
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
}

func TestCheck_ScoringError(t *testing.T) {
	svc := New(&mockBackendPinger{}, &mockProviderChecker{}, &mockProviderChecker{err: errors.New("quota")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["scoring"] != CheckError {
		t.Errorf("expected scoring %q, got %q", CheckError, r.Checks["scoring"])
	}
}

func TestCheck_NoProviders(t *testing.T) {
	svc := New(&mockBackendPinger{}, nil, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["backend"] != CheckOK {
		t.Errorf("expected backend %q, got %q", CheckOK, r.Checks["backend"])
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("embedding check should be absent when embedding is nil")
	}
	if _, ok := r.Checks["scoring"]; ok {
		t.Error("scoring check should be absent when scoring is nil")
	}
}
