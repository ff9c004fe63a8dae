package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/ensotalk/internal/resilience"
)

// ErrNotRunning is reported by [LoopCheck] when the loop has not started or
// has exited.
var ErrNotRunning = errors.New("controller loop not running")

// LoopCheck is a liveness check on a long-running loop, such as the voice
// controller's Alive method.
func LoopCheck(name string, alive func() bool) Checker {
	return Checker{
		Name:     name,
		Liveness: true,
		Check: func(context.Context) error {
			if !alive() {
				return ErrNotRunning
			}
			return nil
		},
	}
}

// CredentialsCheck fails while missing reports any unconfigured credential.
func CredentialsCheck(missing func() []string) Checker {
	return Checker{
		Name: "credentials",
		Check: func(context.Context) error {
			if m := missing(); len(m) > 0 {
				return fmt.Errorf("missing %s", strings.Join(m, ", "))
			}
			return nil
		},
	}
}

// Pinger is satisfied by database pools such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// BreakerCheck fails when every backend of a failover group has an open
// circuit. A half-open backend counts as available.
func BreakerCheck(name string, status func() []resilience.EntryStatus) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			entries := status()
			open := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.State == resilience.StateOpen {
					open = append(open, e.Name)
				}
			}
			if len(entries) > 0 && len(open) == len(entries) {
				return fmt.Errorf("all circuits open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
}
