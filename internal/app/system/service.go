package system

import "context"

// Service is a lifecycle-managed component. Every long-lived part of the
// backend (HTTP API, maintenance jobs, leaderboard cache) implements it so
// the manager can bring the process up and down in a fixed order.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
