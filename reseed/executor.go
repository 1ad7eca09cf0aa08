package reseed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jkaberg/reseed/qbit"
	"github.com/jkaberg/reseed/torrent"
)

// Registrar hands torrent files to the download service.
type Registrar interface {
	AddTorrent(ctx context.Context, data []byte, opts qbit.AddOptions) error
}

// Executor registers parsed torrents with the download service so that they
// resume seeding from content already on disk.
type Executor struct {
	r   Registrar
	log zerolog.Logger
}

func NewExecutor(r Registrar, l zerolog.Logger) *Executor {
	return &Executor{
		r:   r,
		log: l.With().Str("component", "executor").Logger(),
	}
}

// Register adds d with automatic management off, hash checking skipped and
// the torrent started. An empty savePath leaves the location to the service.
func (e *Executor) Register(ctx context.Context, d *torrent.Descriptor, savePath string) Outcome {
	l := e.log.With().Str("file", d.Filename).Str("hash", d.InfoHash).Logger()

	if err := e.r.AddTorrent(ctx, d.Raw, qbit.ReseedOptions(savePath)); err != nil {
		l.Error().Err(err).Str("save-path", savePath).Msg("error registering torrent")
		return Errored
	}

	l.Debug().Str("save-path", savePath).Msg("torrent registered")
	return Added
}
