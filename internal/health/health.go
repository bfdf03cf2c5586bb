// Package health provides readiness checks for the feed service's backing
// stores.
package health

import "context"

// Checker is implemented by every dependency probe.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
