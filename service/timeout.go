package service

import (
	"context"
	"time"
)

const (
	// DefaultCallTimeout bounds one chain or event backend call
	DefaultCallTimeout = 10 * time.Second
	// DefaultApproveTimeout bounds sending an approval and waiting for its receipt
	DefaultApproveTimeout = 3 * time.Minute
)

// withTimeout derives a context ending after d. A non-positive d keeps ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
