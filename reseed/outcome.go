package reseed

import "sync"

// Outcome is the final state of a single file in a batch.
type Outcome int

const (
	Added Outcome = iota
	Skipped
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Skipped:
		return "skipped"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Summary is the tally of a batch. Total always equals Added + Skipped + Errored.
type Summary struct {
	Total   int
	Added   int
	Skipped int
	Errored int
}

type tally struct {
	mut sync.Mutex
	s   Summary
}

func (t *tally) record(o Outcome) {
	t.mut.Lock()
	defer t.mut.Unlock()

	t.s.Total++
	switch o {
	case Added:
		t.s.Added++
	case Skipped:
		t.s.Skipped++
	default:
		t.s.Errored++
	}
}

func (t *tally) summary() Summary {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.s
}
