package remote

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Store is the remote file tree holding already downloaded content.
type Store interface {
	// List returns the names of the directories directly under dir, in the
	// order the backend reports them.
	List(ctx context.Context, dir string) ([]string, error)
	// Exists reports whether p exists. A false result with a nil error means
	// the backend confirmed the path is missing.
	Exists(ctx context.Context, p string) (bool, error)
}

// Categories lists the top-level directories under base. Any failure is
// logged and reported as an empty list.
func Categories(ctx context.Context, s Store, base string, timeout time.Duration) []string {
	l := log.Logger.With().Str("component", "remote").Logger()

	cats, err := withTimeout(ctx, timeout, func(ctx context.Context) ([]string, error) {
		return s.List(ctx, base)
	})
	if err != nil {
		l.Error().Err(err).Str("base", base).Msg("could not list remote categories")
		return nil
	}

	l.Info().Str("base", base).Strs("categories", cats).Msgf("retrieved %d categories from remote", len(cats))
	return cats
}

// withTimeout runs fn under its own deadline and gives up waiting when the
// deadline passes, even if the backend ignores the context.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

var _ Store = &Limited{}

// Limited throttles existence probes so a large batch does not flood the
// remote host with connections.
type Limited struct {
	Store
	l *rate.Limiter
}

// NewLimited wraps s with a probe rate limit. A non-positive rate returns s
// unchanged.
func NewLimited(s Store, perSecond float64) Store {
	if perSecond <= 0 {
		return s
	}

	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	return &Limited{Store: s, l: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Exists(ctx context.Context, p string) (bool, error) {
	if err := l.Wait(ctx); err != nil {
		return false, err
	}
	return l.Store.Exists(ctx, p)
}

// Wait blocks until the next probe may start.
func (l *Limited) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// Unpaced returns the wrapped store.
func (l *Limited) Unpaced() Store {
	return l.Store
}

// pacer is a store whose probes queue for a slot. Callers wait outside the
// probe deadline and then use the unpaced store.
type pacer interface {
	Wait(ctx context.Context) error
	Unpaced() Store
}
