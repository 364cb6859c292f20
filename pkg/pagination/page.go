package pagination

import (
	"github.com/tablodata/tablo/pkg/storage"
)

// Page is one window of a streamed result set. It is consumed exactly once
// through Next/Row; Len and HasNext become known only after the page has
// been fully drained.
type Page struct {
	// Number is the 1-based page number.
	Number int

	perPage int
	it      *ObservableIterator
	drained bool
	length  int
	hasNext bool
	err     error
}

func newPage(number, perPage int, inner storage.Iterator) *Page {
	p := &Page{Number: number, perPage: perPage}
	p.it = NewObservableIterator(inner)
	p.it.OnDone(p.finish)
	return p
}

// Next advances to the next row of the page. When the page size has been
// reached, the sentinel row is pulled and discarded so its presence can be
// recorded, and iteration stops.
func (p *Page) Next() bool {
	if p.it.Done() {
		return false
	}
	if p.it.Produced() == p.perPage {
		p.it.Next()
		p.it.Stop()
		return false
	}
	return p.it.Next()
}

// Row returns the current row.
func (p *Page) Row() storage.Row { return p.it.Row() }

// AddObserver installs an item observer on the underlying iterator. The
// sentinel row, when present, is observed like any other pull.
func (p *Page) AddObserver(fn ItemObserver) { p.it.AddObserver(fn) }

// OnDone installs a completion observer on the underlying iterator.
func (p *Page) OnDone(fn DoneObserver) { p.it.OnDone(fn) }

func (p *Page) finish(empty bool) {
	p.drained = true
	n := p.it.Produced()
	p.length = n
	if n > p.perPage {
		p.length = p.perPage
	}
	p.hasNext = n > p.perPage
	if empty && p.Number > 1 {
		p.err = ErrPageOutOfRange
	}
}

// Size returns the configured page size.
func (p *Page) Size() int { return p.perPage }

// Drained reports whether the page has been fully consumed.
func (p *Page) Drained() bool { return p.drained }

// Len returns the number of rows on the page. The second return is false
// until the page has been drained.
func (p *Page) Len() (int, bool) {
	if !p.drained {
		return 0, false
	}
	return p.length, true
}

// HasNext reports whether a further page exists. The second return is false
// until the page has been drained.
func (p *Page) HasNext() (bool, bool) {
	if !p.drained {
		return false, false
	}
	return p.hasNext, true
}

// HasPrevious reports whether a preceding page exists. It is known up front.
func (p *Page) HasPrevious() bool { return p.Number > 1 }

// Err returns the first error encountered: a storage error from the
// underlying iterator, or ErrPageOutOfRange when a page beyond the first
// turned out to hold no rows.
func (p *Page) Err() error {
	if err := p.it.Err(); err != nil {
		return err
	}
	return p.err
}

// Close releases the underlying row source.
func (p *Page) Close() error { return p.it.Close() }
