package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tablodata/tablo/pkg/blueprint"
	"github.com/tablodata/tablo/pkg/metrics"
	"github.com/tablodata/tablo/pkg/pagination"
)

// RenderList streams a page as a listing envelope. Rows are written while
// the page drains; the _links and page sections depend on has-next
// bookkeeping and therefore come after the body rows. pageURL builds the
// listing URL for a given page number, preserving the other parameters.
//
// The first row is pulled before anything is written, so an out-of-range
// page still surfaces as an error instead of a truncated body.
func (r *Renderer) RenderList(ctx context.Context, w io.Writer, bp *blueprint.Blueprint, page *pagination.Page, pageURL func(int) string, opts Options) error {
	defer page.Close()

	first := page.Next()
	if !first {
		if err := page.Err(); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, `{"_embedded":{%s:[`, jsonString(bp.Table.ID)); err != nil {
		return err
	}

	rows := metrics.RowsStreamed.WithLabelValues(bp.Table.Key())
	for ok := first; ok; ok = page.Next() {
		obj, err := r.RenderObject(ctx, bp, page.Row(), opts)
		if err != nil {
			return err
		}
		buf, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		if !first {
			if _, err := w.Write([]byte{','}); err != nil {
				return err
			}
		}
		first = false
		if _, err := w.Write(buf); err != nil {
			return err
		}
		rows.Inc()
	}
	if err := page.Err(); err != nil {
		return err
	}

	links := map[string]any{
		"self": map[string]any{"href": pageURL(page.Number)},
	}
	if next, _ := page.HasNext(); next {
		links["next"] = map[string]any{"href": pageURL(page.Number + 1)}
	}
	if page.HasPrevious() {
		links["previous"] = map[string]any{"href": pageURL(page.Number - 1)}
	}
	buf, err := json.Marshal(links)
	if err != nil {
		return err
	}
	length, _ := page.Len()
	_, err = fmt.Fprintf(w, `]},"_links":%s,"page":{"number":%d,"size":%d,"length":%d}}`,
		buf, page.Number, page.Size(), length)
	return err
}

func jsonString(s string) string {
	buf, _ := json.Marshal(s)
	return string(buf)
}
