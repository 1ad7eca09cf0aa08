package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/jkaberg/reseed/config"
	dlog "github.com/jkaberg/reseed/log"
	"github.com/jkaberg/reseed/qbit"
	"github.com/jkaberg/reseed/remote"
	"github.com/jkaberg/reseed/reseed"
	"github.com/jkaberg/reseed/torrent"
)

const (
	configFlag        = "config"
	torrentDirFlag    = "torrent-dir"
	workersFlag       = "workers"
	qbitPasswordFlag  = "qbit-password"
	sshPasswordFlag   = "ssh-password"
	watchIntervalFlag = "interval"
)

func main() {
	// optional, secrets may live in .env instead of the yaml file
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "reseed",
		Usage: "Re-seed existing content by adding .torrent files to qBittorrent.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Value:   "./reseed.yaml",
				EnvVars: []string{"RESEED_CONFIG"},
				Usage:   "YAML file containing reseed configuration.",
			},
			&cli.StringFlag{
				Name:    torrentDirFlag,
				EnvVars: []string{"RESEED_TORRENT_DIR"},
				Usage:   "Folder with the .torrent files to import.",
			},
			&cli.IntFlag{
				Name:    workersFlag,
				EnvVars: []string{"RESEED_WORKERS"},
				Usage:   "Number of files imported at the same time.",
			},
			&cli.StringFlag{
				Name:    qbitPasswordFlag,
				EnvVars: []string{"RESEED_QBITTORRENT_PASSWORD"},
				Usage:   "qBittorrent WebUI password.",
			},
			&cli.StringFlag{
				Name:    sshPasswordFlag,
				EnvVars: []string{"RESEED_SSH_PASSWORD"},
				Usage:   "Password for the remote SSH host.",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Import every file in the torrent folder once.",
				Action: run,
			},
			{
				Name:  "watch",
				Usage: "Import the torrent folder, then keep importing files added to it.",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    watchIntervalFlag,
						Value:   5 * time.Second,
						EnvVars: []string{"RESEED_WATCH_INTERVAL"},
						Usage:   "Time a new file must stay untouched before it is imported.",
					},
				},
				Action: watch,
			},
			{
				Name:   "categories",
				Usage:  "List the remote categories a run would use.",
				Action: categories,
			},
		},
		DefaultCommand:  "run",
		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("problem starting application")
	}
}

func load(c *cli.Context) (*config.Root, error) {
	conf, err := config.NewHandler(c.String(configFlag)).Get()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	if c.IsSet(torrentDirFlag) {
		conf.Import.TorrentDir = c.String(torrentDirFlag)
	}
	if c.IsSet(workersFlag) {
		conf.Import.Workers = c.Int(workersFlag)
	}
	if c.IsSet(qbitPasswordFlag) {
		conf.QBittorrent.Password = c.String(qbitPasswordFlag)
	}
	if c.IsSet(sshPasswordFlag) {
		conf.Remote.Password = c.String(sshPasswordFlag)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dlog.Load(conf.Log)

	return conf, nil
}

func newStore(conf *config.Remote) (remote.Store, func() error, error) {
	var s remote.Store
	closer := func() error { return nil }

	switch conf.Type {
	case config.RemoteSSH:
		ss, err := remote.NewSSH(conf)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating ssh remote: %w", err)
		}
		s, closer = ss, ss.Close
	case config.RemoteLocal:
		s = remote.NewLocal(afero.NewOsFs())
	default:
		return nil, nil, fmt.Errorf("unknown remote type %q", conf.Type)
	}

	return remote.NewLimited(s, conf.ProbesPerSecond), closer, nil
}

// importer holds everything a batch needs once the preconditions are met.
type importer struct {
	conf  *config.Root
	store remote.Store
	close func() error
	coord *reseed.Coordinator
}

func newImporter(ctx context.Context, conf *config.Root) (*importer, error) {
	s, closer, err := newStore(conf.Remote)
	if err != nil {
		return nil, err
	}

	qc, err := qbit.Connect(ctx, conf.QBittorrent)
	if err != nil {
		closer()
		return nil, err
	}

	cl := remote.NewClassifier(s, conf.Remote.BaseDir, seconds(conf.Remote.ProbeTimeout))
	coord := reseed.NewCoordinator(afero.NewOsFs(), reseed.Options{
		Dir:       conf.Import.TorrentDir,
		LocalBase: conf.Import.LocalBaseDir,
		Workers:   conf.Import.Workers,
	}, torrent.Parser{}, cl, qc, log.Logger)

	return &importer{conf: conf, store: s, close: closer, coord: coord}, nil
}

func (i *importer) categories(ctx context.Context) []string {
	return remote.Categories(ctx, i.store, i.conf.Remote.BaseDir, seconds(i.conf.Remote.ListTimeout))
}

func (i *importer) runAll(ctx context.Context) error {
	s, err := i.coord.Run(ctx, i.categories(ctx))
	if err != nil {
		return err
	}

	printSummary(os.Stdout, s)
	return nil
}

func (i *importer) runFiles(ctx context.Context, names []string) error {
	s, err := i.coord.RunFiles(ctx, i.categories(ctx), names)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, s)
	return nil
}

func run(c *cli.Context) error {
	conf, err := load(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	banner(conf)

	i, err := newImporter(ctx, conf)
	if err != nil {
		return err
	}
	defer i.close()

	return i.runAll(ctx)
}

func watch(c *cli.Context) error {
	conf, err := load(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	banner(conf)

	i, err := newImporter(ctx, conf)
	if err != nil {
		return err
	}
	defer i.close()

	w, err := reseed.NewWatcher(conf.Import.TorrentDir, c.Duration(watchIntervalFlag), func(ctx context.Context, names []string) {
		if err := i.runFiles(ctx, names); err != nil {
			log.Error().Err(err).Strs("files", names).Msg("error importing new torrent files")
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	// the watcher is already registered, so files created from here on are
	// either in this listing or reported to it, possibly both
	names, err := i.coord.Entries()
	if err != nil {
		return err
	}
	if err := i.runFiles(ctx, names); err != nil {
		return err
	}
	w.Imported(names)

	return w.Run(ctx)
}

func categories(c *cli.Context) error {
	conf, err := load(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	s, closer, err := newStore(conf.Remote)
	if err != nil {
		return err
	}
	defer closer()

	cats := remote.Categories(ctx, s, conf.Remote.BaseDir, seconds(conf.Remote.ListTimeout))
	if len(cats) == 0 {
		return reseed.ErrNoCategories
	}

	printCategories(os.Stdout, conf.Remote.BaseDir, conf.Import.LocalBaseDir, cats)
	return nil
}

func banner(conf *config.Root) {
	log.Info().Msg("===== Parallel Torrent Re-seed Import =====")
	log.Info().
		Str("torrent-dir", conf.Import.TorrentDir).
		Str("remote", conf.Remote.Type).
		Str("remote-host", conf.Remote.Host).
		Str("remote-base", conf.Remote.BaseDir).
		Str("local-base", conf.Import.LocalBaseDir).
		Int("workers", conf.Import.Workers).
		Str("qbittorrent", qbit.URL(conf.QBittorrent)).
		Msg("configuration")
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}
