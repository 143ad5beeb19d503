package assist

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Progress receives enrichment progress. Advance may be called from several
// goroutines.
type Progress interface {
	Begin(total int)
	Advance()
}

// TerminalProgress rewrites a single status line such as
// " 3/10 warnings processed". It stays silent when its output is not a
// terminal.
type TerminalProgress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	total   int
	done    int
}

// NewTerminalProgress reports to f when f is a terminal.
func NewTerminalProgress(f *os.File) *TerminalProgress {
	return &TerminalProgress{w: f, enabled: term.IsTerminal(int(f.Fd()))}
}

// NewProgressWriter always reports to w.
func NewProgressWriter(w io.Writer) *TerminalProgress {
	return &TerminalProgress{w: w, enabled: true}
}

// Begin resets the counter for a run of total warnings.
func (p *TerminalProgress) Begin(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.done = 0
}

// Advance counts one processed warning and redraws the line.
func (p *TerminalProgress) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.enabled {
		fmt.Fprintf(p.w, " %d/%d warnings processed\r", p.done, p.total)
	}
}

type nopProgress struct{}

func (nopProgress) Begin(int) {}
func (nopProgress) Advance()  {}
