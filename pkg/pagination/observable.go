package pagination

import (
	"github.com/tablodata/tablo/pkg/storage"
)

// ItemObserver is notified for every row pulled through the iterator.
type ItemObserver func(storage.Row)

// DoneObserver is notified once when the iterator completes; empty reports
// whether it produced no rows at all.
type DoneObserver func(empty bool)

// ObservableIterator wraps a row iterator and counts every pull, so page
// bookkeeping can happen during the single draining pass performed by the
// rendering layer, without materializing rows.
type ObservableIterator struct {
	inner     storage.Iterator
	observers []ItemObserver
	onDone    []DoneObserver
	produced  int
	done      bool
}

// NewObservableIterator wraps inner with optional item observers.
func NewObservableIterator(inner storage.Iterator, observers ...ItemObserver) *ObservableIterator {
	return &ObservableIterator{inner: inner, observers: observers}
}

// AddObserver installs an item observer.
func (o *ObservableIterator) AddObserver(fn ItemObserver) {
	o.observers = append(o.observers, fn)
}

// OnDone installs a completion observer.
func (o *ObservableIterator) OnDone(fn DoneObserver) {
	o.onDone = append(o.onDone, fn)
}

func (o *ObservableIterator) Next() bool {
	if o.done {
		return false
	}
	if !o.inner.Next() {
		o.finish()
		return false
	}
	o.produced++
	row := o.inner.Row()
	for _, fn := range o.observers {
		fn(row)
	}
	return true
}

// Stop marks the iterator complete without pulling further rows.
func (o *ObservableIterator) Stop() {
	o.finish()
}

func (o *ObservableIterator) finish() {
	if o.done {
		return
	}
	o.done = true
	for _, fn := range o.onDone {
		fn(o.produced == 0)
	}
}

// Produced returns the number of rows pulled so far.
func (o *ObservableIterator) Produced() int { return o.produced }

// Done reports whether the iterator has completed.
func (o *ObservableIterator) Done() bool { return o.done }

func (o *ObservableIterator) Row() storage.Row { return o.inner.Row() }

func (o *ObservableIterator) Err() error { return o.inner.Err() }

func (o *ObservableIterator) Close() error { return o.inner.Close() }
