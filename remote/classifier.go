package remote

import (
	"context"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Match is the result of classifying a torrent name. The zero value means no
// category holds the content.
type Match struct {
	Category   string
	RemotePath string
}

func (m Match) Matched() bool { return m.Category != "" }

// Classifier finds the first category directory that already contains a
// torrent's content.
type Classifier struct {
	store   Store
	base    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewClassifier probes under base, giving each probe probeTimeout.
func NewClassifier(s Store, base string, probeTimeout time.Duration) *Classifier {
	return &Classifier{
		store:   s,
		base:    base,
		timeout: probeTimeout,
		log:     log.Logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify probes <base>/<category>/<name> for each category in order and
// returns the first one that exists. Failed or timed out probes count as
// missing; running out of categories is not an error. The probe timeout
// starts once a rate limited store has granted the probe a slot.
func (c *Classifier) Classify(ctx context.Context, name string, categories []string) Match {
	store := c.store
	pc, paced := c.store.(pacer)
	if paced {
		store = pc.Unpaced()
	}

	for _, cat := range categories {
		p := path.Join(c.base, cat, name)

		if paced {
			if err := pc.Wait(ctx); err != nil {
				c.log.Warn().Err(err).Str("name", name).Str("path", p).Msg("probe not started, treating path as missing")
				continue
			}
		}

		ok, err := withTimeout(ctx, c.timeout, func(ctx context.Context) (bool, error) {
			return store.Exists(ctx, p)
		})
		if err != nil {
			c.log.Warn().Err(err).Str("name", name).Str("path", p).Msg("probe failed, treating path as missing")
			continue
		}

		if ok {
			return Match{Category: cat, RemotePath: p}
		}
	}

	return Match{}
}
