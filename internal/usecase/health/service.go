package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a model provider is failing while the backend is up.
	Degraded Status = "degraded"
	// Unhealthy indicates the index backend is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	backend   BackendPinger
	embedding ProviderChecker
	scoring   ProviderChecker
}

// New creates a Service. embedding and scoring can be nil.
func New(backend BackendPinger, embedding, scoring ProviderChecker) *Service {
	return &Service{backend: backend, embedding: embedding, scoring: scoring}
}

// Check runs health checks against all components. A backend failure is
// fatal because every strategy depends on it; a provider failure only
// degrades, since retrieval without re-ranking or distillation still works.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	backendUp := s.backend.Ping(ctx) == nil
	if backendUp {
		checks["backend"] = CheckOK
	} else {
		checks["backend"] = CheckError
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}
	if s.scoring != nil {
		if err := s.scoring.HealthCheck(ctx); err != nil {
			checks["scoring"] = CheckError
		} else {
			checks["scoring"] = CheckOK
		}
	}

	status := Healthy
	if !backendUp {
		status = Unhealthy
	} else {
		for _, v := range checks {
			if v == CheckError {
				status = Degraded
				break
			}
		}
	}

	return Report{Status: status, Checks: checks}
}
