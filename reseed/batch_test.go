package reseed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/reseed/qbit"
	"github.com/jkaberg/reseed/remote"
	"github.com/jkaberg/reseed/torrent"
)

const (
	torrentDir = "/data/bt_files"
	remoteBase = "/remote/media"
	localBase  = "/mnt/media"
)

func torrentFile(t *testing.T, name string) []byte {
	t.Helper()
	b, err := bencode.Marshal(map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info": map[string]interface{}{
			"name":         name,
			"piece length": 16384,
			"pieces":       "",
			"length":       1024,
		},
	})
	require.NoError(t, err)
	return b
}

type registration struct {
	data []byte
	opts qbit.AddOptions
}

// fakeRegistrar records every registration. Torrents whose bytes are in fail
// are rejected. delay keeps calls in flight long enough to observe overlap.
type fakeRegistrar struct {
	mu    sync.Mutex
	calls []registration
	fail  map[string]bool
	delay time.Duration

	inFlight    int32
	maxInFlight int32
}

func (f *fakeRegistrar) AddTorrent(ctx context.Context, data []byte, opts qbit.AddOptions) error {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxInFlight, m, n) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, registration{data: data, opts: opts})

	if f.fail[string(data)] {
		return errors.New("unexpected status 415")
	}
	return nil
}

// savePaths maps each registered torrent's bytes to its save path.
func (f *fakeRegistrar) savePaths() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string, len(f.calls))
	for _, c := range f.calls {
		out[string(c.data)] = c.opts.SavePath
	}
	return out
}

func (f *fakeRegistrar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// spyParser counts calls before delegating to the real parser.
type spyParser struct {
	calls int32
	panic bool
}

func (s *spyParser) Parse(filename string, data []byte) (*torrent.Descriptor, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.panic {
		panic("boom")
	}
	return torrent.ParseDescriptor(filename, data)
}

type fixture struct {
	fs         afero.Fs
	classifier *remote.Classifier
	categories []string
	files      map[string][]byte
}

// newFixture lays out a torrent folder with three good torrents, one text
// file and one corrupt torrent, plus a remote tree holding two of the
// three names.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()

	files := map[string][]byte{
		"movie.torrent":   torrentFile(t, "Some.Movie.2019"),
		"book.torrent":    torrentFile(t, "Some Book (2001)"),
		"unknown.torrent": torrentFile(t, "Nowhere.To.Be.Found"),
		"readme.txt":      []byte("not a torrent"),
		"broken.torrent":  []byte("<html>502 bad gateway</html>"),
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(torrentDir, name), data, 0644))
	}

	require.NoError(t, fs.MkdirAll(remoteBase+"/Movies/Some.Movie.2019", 0755))
	require.NoError(t, fs.MkdirAll(remoteBase+"/Books", 0755))
	require.NoError(t, afero.WriteFile(fs, remoteBase+"/Books/Some Book (2001)", []byte("epub"), 0644))
	require.NoError(t, fs.MkdirAll(remoteBase+"/TV", 0755))

	store := remote.NewLocal(fs)
	categories := remote.Categories(context.Background(), store, remoteBase, time.Second)
	require.Equal(t, []string{"Books", "Movies", "TV"}, categories)

	return &fixture{
		fs:         fs,
		classifier: remote.NewClassifier(store, remoteBase, time.Second),
		categories: categories,
		files:      files,
	}
}

func (f *fixture) coordinator(workers int, p Parser, r Registrar) *Coordinator {
	return NewCoordinator(f.fs, Options{Dir: torrentDir, LocalBase: localBase, Workers: workers}, p, f.classifier, r, zerolog.Nop())
}

func TestRunMixedFolder(t *testing.T) {
	f := newFixture(t)
	r := &fakeRegistrar{}

	s, err := f.coordinator(3, torrent.Parser{}, r).Run(context.Background(), f.categories)
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 5, Added: 3, Skipped: 1, Errored: 1}, s)

	require.Equal(t, map[string]string{
		string(f.files["movie.torrent"]):   filepath.Join(localBase, "Movies"),
		string(f.files["book.torrent"]):    filepath.Join(localBase, "Books"),
		string(f.files["unknown.torrent"]): "",
	}, r.savePaths())

	for _, c := range r.calls {
		require.False(t, c.opts.AutoManage)
		require.True(t, c.opts.SkipChecking)
		require.False(t, c.opts.Paused)
	}
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	var expected map[string]string
	for _, workers := range []int{1, 2, 10} {
		f := newFixture(t)
		r := &fakeRegistrar{}

		s, err := f.coordinator(workers, torrent.Parser{}, r).Run(context.Background(), f.categories)
		require.NoError(t, err)
		require.Equal(t, Summary{Total: 5, Added: 3, Skipped: 1, Errored: 1}, s, "workers=%d", workers)

		if expected == nil {
			expected = r.savePaths()
		}
		require.Equal(t, expected, r.savePaths(), "workers=%d", workers)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 12; i++ {
		name := string(rune('a'+i)) + ".torrent"
		require.NoError(t, afero.WriteFile(fs, filepath.Join(torrentDir, name), torrentFile(t, name), 0644))
	}

	r := &fakeRegistrar{delay: 20 * time.Millisecond}
	c := NewCoordinator(fs, Options{Dir: torrentDir, LocalBase: localBase, Workers: 3},
		torrent.Parser{}, remote.NewClassifier(remote.NewLocal(fs), remoteBase, time.Second), r, zerolog.Nop())

	s, err := c.Run(context.Background(), []string{"Movies"})
	require.NoError(t, err)
	require.Equal(t, 12, s.Added)
	require.LessOrEqual(t, atomic.LoadInt32(&r.maxInFlight), int32(3))
}

func TestRunSkipsBeforeParsing(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"notes.txt", "cover.jpg", "UPPER.TORRENT", "torrent"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(torrentDir, name), []byte("x"), 0644))
	}

	p := &spyParser{}
	r := &fakeRegistrar{}
	c := NewCoordinator(fs, Options{Dir: torrentDir, LocalBase: localBase, Workers: 2},
		p, remote.NewClassifier(remote.NewLocal(fs), remoteBase, time.Second), r, zerolog.Nop())

	s, err := c.Run(context.Background(), []string{"Movies"})
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 4, Skipped: 4}, s)
	require.Zero(t, atomic.LoadInt32(&p.calls))
	require.Zero(t, r.count())
}

func TestRunRegistrationFailureIsErrored(t *testing.T) {
	f := newFixture(t)
	r := &fakeRegistrar{fail: map[string]bool{string(f.files["book.torrent"]): true}}

	s, err := f.coordinator(4, torrent.Parser{}, r).Run(context.Background(), f.categories)
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 5, Added: 2, Skipped: 1, Errored: 2}, s)
	require.Equal(t, 3, r.count())
}

func TestRunWithoutCategoriesAborts(t *testing.T) {
	f := newFixture(t)
	p := &spyParser{}
	r := &fakeRegistrar{}

	for _, categories := range [][]string{nil, {}} {
		s, err := f.coordinator(2, p, r).Run(context.Background(), categories)
		require.ErrorIs(t, err, ErrNoCategories)
		require.Equal(t, Summary{}, s)
	}

	_, err := f.coordinator(2, p, r).RunFiles(context.Background(), nil, []string{"movie.torrent"})
	require.ErrorIs(t, err, ErrNoCategories)

	require.Zero(t, atomic.LoadInt32(&p.calls))
	require.Zero(t, r.count())
}

func TestRunMissingFolder(t *testing.T) {
	c := NewCoordinator(afero.NewMemMapFs(), Options{Dir: "/nope", LocalBase: localBase, Workers: 1},
		torrent.Parser{}, &stubClassifier{}, &fakeRegistrar{}, zerolog.Nop())

	_, err := c.Run(context.Background(), []string{"Movies"})
	require.Error(t, err)
}

func TestRunEmptyFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(torrentDir, 0755))

	c := NewCoordinator(fs, Options{Dir: torrentDir, LocalBase: localBase, Workers: 4},
		torrent.Parser{}, &stubClassifier{}, &fakeRegistrar{}, zerolog.Nop())

	s, err := c.Run(context.Background(), []string{"Movies"})
	require.NoError(t, err)
	require.Equal(t, Summary{}, s)
}

func TestRunFilesOnlyTouchesGivenNames(t *testing.T) {
	f := newFixture(t)
	r := &fakeRegistrar{}

	s, err := f.coordinator(2, torrent.Parser{}, r).RunFiles(context.Background(), f.categories,
		[]string{"movie.torrent", "gone.torrent"})
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 2, Added: 1, Errored: 1}, s)
	require.Equal(t, map[string]string{
		string(f.files["movie.torrent"]): filepath.Join(localBase, "Movies"),
	}, r.savePaths())
}

func TestRunRecoversFromCrashingTask(t *testing.T) {
	f := newFixture(t)
	r := &fakeRegistrar{}

	s, err := f.coordinator(2, &spyParser{panic: true}, r).Run(context.Background(), f.categories)
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 5, Skipped: 1, Errored: 4}, s)
	require.Zero(t, r.count())
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, name string, categories []string) remote.Match {
	return remote.Match{}
}

func TestEntriesAreSorted(t *testing.T) {
	f := newFixture(t)

	names, err := f.coordinator(1, torrent.Parser{}, &fakeRegistrar{}).Entries()
	require.NoError(t, err)
	require.Equal(t, []string{"book.torrent", "broken.torrent", "movie.torrent", "readme.txt", "unknown.torrent"}, names)
}
