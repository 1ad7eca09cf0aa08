package log

import (
	"bytes"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

var _ io.Writer = &Qbit{}

// Qbit receives the output of the standard library logger used by the
// qBittorrent client and forwards each line to zerolog.
type Qbit struct {
	L zerolog.Logger
}

func (l *Qbit) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		text := strings.TrimSpace(string(line))
		if text == "" {
			continue
		}

		// Login notices are expected once per run.
		if strings.HasPrefix(text, "logged into client") {
			l.L.Debug().Msg(text)
			continue
		}

		e := l.L.Debug()
		if strings.Contains(strings.ToLower(text), "error") {
			e = l.L.Warn().Str("error-type", "error")
		}
		e.Msg(text)
	}

	return len(p), nil
}
