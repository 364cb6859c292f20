package pagination

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablodata/tablo/pkg/storage"
)

type stubIterator struct {
	rows    []storage.Row
	current storage.Row
	err     error
	closed  bool
}

func (it *stubIterator) Next() bool {
	if it.err != nil || len(it.rows) == 0 {
		return false
	}
	it.current = it.rows[0]
	it.rows = it.rows[1:]
	return true
}

func (it *stubIterator) Row() storage.Row { return it.current }
func (it *stubIterator) Err() error       { return it.err }
func (it *stubIterator) Close() error     { it.closed = true; return nil }

// numberedRows builds rows n..m inclusive.
func numberedRows(n, m int) []storage.Row {
	var rows []storage.Row
	for i := n; i <= m; i++ {
		rows = append(rows, storage.Row{"id": i})
	}
	return rows
}

// sliceFetch serves windows of a fixed result set and records the
// requested offset and limit.
func sliceFetch(all []storage.Row, gotOffset, gotLimit *int) FetchFunc {
	return func(offset, limit int) (storage.Iterator, error) {
		if gotOffset != nil {
			*gotOffset = offset
		}
		if gotLimit != nil {
			*gotLimit = limit
		}
		window := all
		if offset >= len(window) {
			window = nil
		} else {
			window = window[offset:]
		}
		if limit < len(window) {
			window = window[:limit]
		}
		return &stubIterator{rows: window}, nil
	}
}

func drain(p *Page) []storage.Row {
	var rows []storage.Row
	for p.Next() {
		rows = append(rows, p.Row())
	}
	return rows
}

func TestValidateNumber(t *testing.T) {
	p := New(10)

	n, err := p.ValidateNumber("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = p.ValidateNumber("")
	assert.ErrorIs(t, err, ErrPageNotAnInteger)
	_, err = p.ValidateNumber("frog")
	assert.ErrorIs(t, err, ErrPageNotAnInteger)
	_, err = p.ValidateNumber("2.5")
	assert.ErrorIs(t, err, ErrPageNotAnInteger)

	_, err = p.ValidateNumber("0")
	assert.ErrorIs(t, err, ErrEmptyPage)
	_, err = p.ValidateNumber("-1")
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestPageWindow(t *testing.T) {
	var offset, limit int
	p := New(5)

	page, err := p.Page(3, sliceFetch(numberedRows(1, 100), &offset, &limit))
	require.NoError(t, err)
	defer page.Close()

	// Page 3 of size 5 covers rows 11..15 plus the sentinel.
	assert.Equal(t, 10, offset)
	assert.Equal(t, 6, limit)

	rows := drain(page)
	require.Len(t, rows, 5)
	assert.Equal(t, 11, rows[0]["id"])
	assert.Equal(t, 15, rows[4]["id"])
}

func TestPageBelowOne(t *testing.T) {
	p := New(5)
	_, err := p.Page(0, sliceFetch(nil, nil, nil))
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestPageFetchError(t *testing.T) {
	p := New(5)
	boom := errors.New("boom")
	_, err := p.Page(1, func(offset, limit int) (storage.Iterator, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPageLenUndefinedUntilDrained(t *testing.T) {
	p := New(5)
	page, err := p.Page(1, sliceFetch(numberedRows(1, 20), nil, nil))
	require.NoError(t, err)
	defer page.Close()

	_, known := page.Len()
	assert.False(t, known)
	_, known = page.HasNext()
	assert.False(t, known)
	assert.False(t, page.Drained())

	// Partially consumed: still unknown.
	require.True(t, page.Next())
	_, known = page.Len()
	assert.False(t, known)

	for page.Next() {
	}
	assert.True(t, page.Drained())

	length, known := page.Len()
	require.True(t, known)
	assert.Equal(t, 5, length)

	hasNext, known := page.HasNext()
	require.True(t, known)
	assert.True(t, hasNext)
	require.NoError(t, page.Err())
}

func TestPageSentinelConsumed(t *testing.T) {
	p := New(3)
	var seen int
	page, err := p.Page(1, sliceFetch(numberedRows(1, 4), nil, nil))
	require.NoError(t, err)
	defer page.Close()
	page.AddObserver(func(storage.Row) { seen++ })

	rows := drain(page)
	assert.Len(t, rows, 3)
	// The sentinel row was pulled and observed, but never exposed.
	assert.Equal(t, 4, seen)

	hasNext, known := page.HasNext()
	require.True(t, known)
	assert.True(t, hasNext)
}

func TestPageLastPage(t *testing.T) {
	p := New(5)
	page, err := p.Page(2, sliceFetch(numberedRows(1, 7), nil, nil))
	require.NoError(t, err)
	defer page.Close()

	rows := drain(page)
	assert.Len(t, rows, 2)

	length, known := page.Len()
	require.True(t, known)
	assert.Equal(t, 2, length)

	hasNext, known := page.HasNext()
	require.True(t, known)
	assert.False(t, hasNext)
	assert.True(t, page.HasPrevious())
	require.NoError(t, page.Err())
}

func TestPageOutOfRange(t *testing.T) {
	p := New(5)
	page, err := p.Page(4, sliceFetch(numberedRows(1, 7), nil, nil))
	require.NoError(t, err)
	defer page.Close()

	assert.False(t, page.Next())
	assert.ErrorIs(t, page.Err(), ErrPageOutOfRange)

	length, known := page.Len()
	require.True(t, known)
	assert.Zero(t, length)
}

func TestEmptyFirstPageIsNotAnError(t *testing.T) {
	p := New(5)
	page, err := p.Page(1, sliceFetch(nil, nil, nil))
	require.NoError(t, err)
	defer page.Close()

	assert.False(t, page.Next())
	require.NoError(t, page.Err())

	length, known := page.Len()
	require.True(t, known)
	assert.Zero(t, length)
	assert.False(t, page.HasPrevious())
}

func TestPageIteratorError(t *testing.T) {
	p := New(5)
	boom := errors.New("connection reset")
	page, err := p.Page(1, func(offset, limit int) (storage.Iterator, error) {
		return &stubIterator{err: boom}, nil
	})
	require.NoError(t, err)
	defer page.Close()

	assert.False(t, page.Next())
	assert.ErrorIs(t, page.Err(), boom)
}

func TestGetPage(t *testing.T) {
	p := New(5)
	all := numberedRows(1, 20)

	// Unparseable page numbers fall back to page 1.
	var offset int
	page, err := p.GetPage("frog", sliceFetch(all, &offset, nil))
	require.NoError(t, err)
	page.Close()
	assert.Equal(t, 1, page.Number)
	assert.Zero(t, offset)

	page, err = p.GetPage("2", sliceFetch(all, &offset, nil))
	require.NoError(t, err)
	page.Close()
	assert.Equal(t, 2, page.Number)
	assert.Equal(t, 5, offset)

	// Below-one numbers stay hard errors.
	_, err = p.GetPage("0", sliceFetch(all, nil, nil))
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestCountUnsupported(t *testing.T) {
	p := New(5)
	_, err := p.Count()
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	_, err = p.NumPages()
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestObservableIterator(t *testing.T) {
	inner := &stubIterator{rows: numberedRows(1, 3)}
	it := NewObservableIterator(inner)

	var items []int
	it.AddObserver(func(r storage.Row) { items = append(items, r["id"].(int)) })
	var doneEmpty []bool
	it.OnDone(func(empty bool) { doneEmpty = append(doneEmpty, empty) })

	for it.Next() {
	}
	assert.Equal(t, []int{1, 2, 3}, items)
	assert.Equal(t, 3, it.Produced())
	assert.True(t, it.Done())
	assert.Equal(t, []bool{false}, doneEmpty)

	// Completion fires exactly once.
	assert.False(t, it.Next())
	it.Stop()
	assert.Len(t, doneEmpty, 1)
}

func TestObservableIteratorEmpty(t *testing.T) {
	it := NewObservableIterator(&stubIterator{})
	var gotEmpty bool
	it.OnDone(func(empty bool) { gotEmpty = empty })

	assert.False(t, it.Next())
	assert.True(t, gotEmpty)
	assert.Zero(t, it.Produced())
}

func TestObservableIteratorStop(t *testing.T) {
	it := NewObservableIterator(&stubIterator{rows: numberedRows(1, 10)})
	require.True(t, it.Next())
	it.Stop()
	assert.True(t, it.Done())
	assert.False(t, it.Next())
	assert.Equal(t, 1, it.Produced())
}

func ExamplePaginator() {
	p := New(2)
	page, _ := p.Page(1, func(offset, limit int) (storage.Iterator, error) {
		return &stubIterator{rows: numberedRows(offset+1, 5)[:limit]}, nil
	})
	defer page.Close()

	for page.Next() {
		fmt.Println(page.Row()["id"])
	}
	hasNext, _ := page.HasNext()
	fmt.Println("next:", hasNext)
	// Output:
	// 1
	// 2
	// next: true
}
