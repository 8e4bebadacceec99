// Package inventory talks to the remote host inventory service.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
)

// ErrUnavailable is returned when the inventory service could not be reached
// or answered with a non-success status.
var ErrUnavailable = errors.New("inventory unavailable")

// Client is the contract the monitor needs from the inventory service.
// Upsert replaces the whole record stored under host.Hostname.
type Client interface {
	FetchAll(ctx context.Context) (map[string]domain.Host, error)
	Upsert(ctx context.Context, host domain.Host) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
