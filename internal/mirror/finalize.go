package mirror

import (
	"errors"
	"fmt"
)

// Finalize rewrites page links in every completed page against the full set
// of completed pages, so links to pages captured later resolve too. Pages
// that are already up to date are left untouched, which makes a second call
// a no-op. It returns the number of pages rewritten.
func (m *Mirror) Finalize() (int, error) {
	pages := m.queue.Completed()

	var errs []error
	rewritten := 0
	for _, p := range pages {
		doc, err := m.writer.ReadPage(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		updated := m.rewriter.RewritePages(doc, pages, p.Depth())
		if updated == doc {
			continue
		}
		if err := m.writer.WritePage(p, updated); err != nil {
			errs = append(errs, fmt.Errorf("finalize %s: %w", p, err))
			continue
		}
		rewritten++
		m.log.Debug("Finalized", "file", p.File())
	}
	return rewritten, errors.Join(errs...)
}
