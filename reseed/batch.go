package reseed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/jkaberg/reseed/remote"
	"github.com/jkaberg/reseed/torrent"
)

// ErrNoCategories aborts a batch before any file is touched.
var ErrNoCategories = errors.New("no remote categories found")

type Parser interface {
	Parse(filename string, data []byte) (*torrent.Descriptor, error)
}

type Classifier interface {
	Classify(ctx context.Context, name string, categories []string) remote.Match
}

type Options struct {
	// Dir holds the .torrent files. Only direct children are processed.
	Dir string
	// LocalBase is where category directories are mounted on this host.
	LocalBase string
	Workers   int
}

// Coordinator runs one import task per directory entry on a bounded pool
// and tallies the outcomes.
type Coordinator struct {
	fs   afero.Fs
	opts Options

	parser     Parser
	classifier Classifier
	executor   *Executor

	log zerolog.Logger
}

func NewCoordinator(fs afero.Fs, opts Options, p Parser, c Classifier, r Registrar, l zerolog.Logger) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Coordinator{
		fs:         fs,
		opts:       opts,
		parser:     p,
		classifier: c,
		executor:   NewExecutor(r, l),
		log:        l.With().Str("component", "reseed").Logger(),
	}
}

// Run processes every entry of the torrent directory.
func (c *Coordinator) Run(ctx context.Context, categories []string) (Summary, error) {
	if len(categories) == 0 {
		return Summary{}, ErrNoCategories
	}

	names, err := c.Entries()
	if err != nil {
		return Summary{}, err
	}

	return c.RunFiles(ctx, categories, names)
}

// RunFiles processes the given entries of the torrent directory. A failing
// file never stops the others; its failure only shows up in the tally.
func (c *Coordinator) RunFiles(ctx context.Context, categories []string, names []string) (Summary, error) {
	if len(categories) == 0 {
		return Summary{}, ErrNoCategories
	}

	l := c.log.With().Str("run", uuid.NewString()).Logger()
	l.Info().
		Int("files", len(names)).
		Int("workers", c.opts.Workers).
		Strs("categories", categories).
		Msg("starting import")

	var t tally
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Workers)

	for _, name := range names {
		name := name
		g.Go(func() error {
			t.record(c.process(ctx, l, categories, name))
			return nil
		})
	}
	_ = g.Wait()

	s := t.summary()
	l.Info().
		Int("total", s.Total).
		Int("added", s.Added).
		Int("skipped", s.Skipped).
		Int("errored", s.Errored).
		Msg("import finished")

	return s, nil
}

// Entries lists the torrent folder, sorted by name.
func (c *Coordinator) Entries() ([]string, error) {
	fis, err := afero.ReadDir(c.fs, c.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("error reading torrent folder %s: %w", c.opts.Dir, err)
	}

	var names []string
	for _, fi := range fis {
		names = append(names, fi.Name())
	}
	sort.Strings(names)

	return names, nil
}

func (c *Coordinator) process(ctx context.Context, l zerolog.Logger, categories []string, name string) (o Outcome) {
	l = l.With().Str("file", name).Logger()

	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("import task crashed")
			o = Errored
		}
	}()

	if !torrent.IsDescriptor(name) {
		l.Debug().Msg("not a torrent file, skipping")
		return Skipped
	}

	data, err := afero.ReadFile(c.fs, filepath.Join(c.opts.Dir, name))
	if err != nil {
		l.Error().Err(err).Msg("error reading torrent file")
		return Errored
	}

	d, err := c.parser.Parse(name, data)
	if err != nil {
		l.Error().Err(err).Msg("error parsing torrent file")
		return Errored
	}

	l = l.With().Str("name", d.Name).Logger()
	l.Info().Msg("processing torrent")

	var savePath string
	m := c.classifier.Classify(ctx, d.Name, categories)
	if m.Matched() {
		savePath = filepath.Join(c.opts.LocalBase, m.Category)
		l.Info().Str("category", m.Category).Str("remote-path", m.RemotePath).Msg("found content on remote")
	} else {
		l.Warn().Msg("content not found in any category, adding with default save path")
	}

	o = c.executor.Register(ctx, d, savePath)
	if o == Added {
		l.Info().Str("save-path", savePath).Msg("torrent added")
	}

	return o
}
