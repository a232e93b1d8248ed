package stage

import "context"

// Checker reports readiness of one pipeline dependency.
type Checker interface {
	HealthCheck(ctx context.Context) Health
}

// CheckFunc adapts a named error-returning probe into a Checker.
func CheckFunc(name string, probe func(ctx context.Context) error) Checker {
	return funcChecker{name: name, probe: probe}
}

type funcChecker struct {
	name  string
	probe func(ctx context.Context) error
}

func (f funcChecker) HealthCheck(ctx context.Context) Health {
	if err := f.probe(ctx); err != nil {
		return Unhealthy(f.name, err.Error())
	}
	return Healthy(f.name)
}
