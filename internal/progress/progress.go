package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/bubbles/progress"

	"github.com/go-scripts/sitemirror/internal/types"
)

// Tracker reports crawl progress on a terminal line. The total grows as the
// crawl discovers pages, so the bar can move backwards.
type Tracker struct {
	out             io.Writer
	quiet           bool
	overallProgress progress.Model
	spin            *spinner.Spinner

	mu             sync.Mutex
	totalPages     int
	processedPages int
	failedPages    int
}

// New creates a Tracker writing to out. A quiet tracker only counts.
func New(out io.Writer, quiet bool) *Tracker {
	return &Tracker{
		out:             out,
		quiet:           quiet,
		overallProgress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:            spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(out)),
	}
}

// SetTotalPages sets the number of pages known so far
func (t *Tracker) SetTotalPages(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalPages = total
}

// FinishPage records a processed page and redraws the bar.
func (t *Tracker) FinishPage(p types.PagePath, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processedPages++
	if !ok {
		t.failedPages++
	}
	if t.quiet || t.totalPages == 0 {
		return
	}

	fmt.Fprintf(t.out, "\r%s %d/%d pages %-40.40s",
		t.overallProgress.ViewAs(t.ratio()),
		t.processedPages,
		t.totalPages,
		string(p))
}

// GetProgress returns the processed fraction in [0, 1].
func (t *Tracker) GetProgress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ratio()
}

// Counts returns processed and failed page counts.
func (t *Tracker) Counts() (processed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processedPages, t.failedPages
}

func (t *Tracker) ratio() float64 {
	if t.totalPages == 0 {
		return 0
	}
	r := float64(t.processedPages) / float64(t.totalPages)
	if r > 1 {
		r = 1
	}
	return r
}

// StartPhase shows a spinner for a step that has no page count.
func (t *Tracker) StartPhase(name string) {
	if t.quiet {
		return
	}
	fmt.Fprintln(t.out)
	t.spin.Suffix = " " + name
	t.spin.Start()
}

// StopPhase stops the spinner started by StartPhase.
func (t *Tracker) StopPhase() {
	if t.quiet {
		return
	}
	t.spin.Stop()
}
