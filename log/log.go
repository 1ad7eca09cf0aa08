package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jkaberg/reseed/config"
)

const FileName = "reseed.log"

// Load sets the global logger: a console writer on stdout plus, when a log
// path is configured, a rotating file.
func Load(conf *config.Log) {
	fd := os.Stdout.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)

	console := zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		NoColor:    !tty,
		TimeFormat: "2006-01-02 15:04:05",
	}

	writers := []io.Writer{console}
	if conf.Path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(conf.Path, FileName),
			MaxBackups: conf.MaxBackups,
			MaxSize:    conf.MaxSize, // megabytes
			MaxAge:     conf.MaxAge,  // days
		})
	}

	l := zerolog.InfoLevel
	if conf.Debug {
		l = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(l)
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}
