package remote

import (
	"context"

	"github.com/spf13/afero"
)

var _ Store = &Local{}

// Local probes a directory tree reachable from this machine, for example a
// network share mounted at the remote base path.
type Local struct {
	fs afero.Fs
}

func NewLocal(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

func (l *Local) List(ctx context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}

	return out, nil
}

func (l *Local) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(l.fs, p)
}
