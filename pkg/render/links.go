package render

import (
	"context"
	"errors"

	"github.com/tablodata/tablo/pkg/blueprint"
	"github.com/tablodata/tablo/pkg/storage"
)

func (r *Renderer) renderLinks(ctx context.Context, bp *blueprint.Blueprint, row storage.Row, opts Options) (map[string]any, error) {
	links := map[string]any{
		"self": r.linkFromRow(bp.Links.Self, row),
	}
	for _, lf := range bp.Links.Relations {
		if lf.Field != nil && !opts.Principal.HasFieldAccess(lf.Field) {
			continue
		}
		switch {
		case lf.Summary:
			obj, err := r.summaryLink(ctx, lf, row, bp)
			if err != nil {
				return nil, err
			}
			links[lf.Name] = obj
		case lf.Through != nil:
			arr, err := r.throughLinks(ctx, lf.Through, row, bp)
			if err != nil {
				return nil, err
			}
			links[lf.Name] = arr
		case lf.Many:
			arr, err := r.reverseLinks(ctx, lf, row, bp)
			if err != nil {
				return nil, err
			}
			links[lf.Name] = arr
		default:
			obj, err := r.singleLink(ctx, lf, row)
			if err != nil {
				return nil, err
			}
			links[lf.Name] = obj
		}
	}
	return links, nil
}

// linkFromRow renders a link object from a full row of the target table:
// the self link, and reverse-relation entries where target rows are at hand.
func (r *Renderer) linkFromRow(shape *blueprint.LinkShape, row storage.Row) map[string]any {
	id := row[shape.IDSource]
	var version any
	if shape.Kind == blueprint.LinkTemporal {
		version = row[shape.VersionSource]
	}
	obj := map[string]any{
		"href":       r.objectURL(shape.Table, id, shape.VersionKey, version),
		shape.IDName: id,
	}
	if shape.TitleSource != "" {
		if title, ok := row[shape.TitleSource]; ok && title != nil {
			obj["title"] = title
		}
	}
	if shape.Kind == blueprint.LinkTemporal && version != nil {
		obj[shape.VersionName] = version
	}
	return obj
}

// linkFromKey renders a link object from the bare stored identifier alone.
func (r *Renderer) linkFromKey(shape *blueprint.LinkShape, key any) map[string]any {
	obj := map[string]any{
		"href":       r.objectURL(shape.Table, key, "", nil),
		shape.IDName: key,
	}
	if shape.Kind == blueprint.LinkLoose {
		obj["title"] = key
	}
	return obj
}

// singleLink renders a forward or loose relation entry. A loose link is
// derived from the stored string alone; a forward link to a titled or
// temporal target fetches the target row for its display and version fields.
func (r *Renderer) singleLink(ctx context.Context, lf *blueprint.LinkField, row storage.Row) (map[string]any, error) {
	key := row[lf.Source]
	if key == nil {
		return nil, nil
	}
	shape := lf.Shape
	if shape.Kind == blueprint.LinkLoose {
		return r.linkFromKey(shape, key), nil
	}
	if shape.TitleSource == "" && shape.Kind != blueprint.LinkTemporal {
		return r.linkFromKey(shape, key), nil
	}
	trow, err := r.source.Lookup(ctx, shape.Table, key)
	if errors.Is(err, storage.ErrRowNotFound) {
		return r.linkFromKey(shape, key), nil
	}
	if err != nil {
		return nil, err
	}
	return r.linkFromRow(shape, trow), nil
}

func (r *Renderer) reverseLinks(ctx context.Context, lf *blueprint.LinkField, row storage.Row, bp *blueprint.Blueprint) ([]map[string]any, error) {
	forward := lf.Field.ReverseOf()
	it, err := r.source.Rows(ctx, storage.Query{
		Table: lf.Field.Related(),
		Filters: []storage.Filter{{
			Column: forward.Column(),
			Op:     storage.OpExact,
			Value:  primaryValue(bp.Table, row),
		}},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	arr := make([]map[string]any, 0)
	for it.Next() {
		arr = append(arr, r.linkFromRow(lf.Shape, it.Row()))
	}
	return arr, it.Err()
}

// summaryLink renders a reverse relation in summary format: the number of
// related rows plus the filtered listing URL, no inline link objects.
func (r *Renderer) summaryLink(ctx context.Context, lf *blueprint.LinkField, row storage.Row, bp *blueprint.Blueprint) (map[string]any, error) {
	forward := lf.Field.ReverseOf()
	ownerKey := primaryValue(bp.Table, row)

	it, err := r.source.Rows(ctx, storage.Query{
		Table: lf.Field.Related(),
		Filters: []storage.Filter{{
			Column: forward.Column(),
			Op:     storage.OpExact,
			Value:  ownerKey,
		}},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	href := r.tableURL(lf.Field.Related()) + "?" + forward.ID + "Id=" + pathValue(ownerKey)
	return map[string]any{"count": count, "href": href}, nil
}

// throughLinks renders a many-to-many entry from the association rows. The
// href and the temporal selectors are all read from the association row;
// only the title may need one hop to the target table.
func (r *Renderer) throughLinks(ctx context.Context, th *blueprint.Through, row storage.Row, bp *blueprint.Blueprint) ([]map[string]any, error) {
	it, err := r.source.Rows(ctx, storage.Query{
		Table: th.Table,
		Filters: []storage.Filter{{
			Column: th.SourceFK,
			Op:     storage.OpExact,
			Value:  primaryValue(bp.Table, row),
		}},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	arr := make([]map[string]any, 0)
	for it.Next() {
		assoc := it.Row()
		key := assoc[th.HrefSource]
		if key == nil {
			continue
		}

		var version any
		if th.VersionSource != "" {
			version = assoc[th.VersionSource]
		}
		obj := map[string]any{
			"href": r.objectURL(th.Target, key, th.VersionKey, version),
		}
		if th.IDName != "" {
			obj[th.IDName] = assoc[th.IDSource]
		}
		if th.PrimaryName != "" {
			obj[th.PrimaryName] = assoc[th.PrimarySource]
		}
		if th.VersionName != "" && version != nil {
			obj[th.VersionName] = version
		}
		for _, dim := range th.Dimensions {
			obj[dim.Name] = assoc[dim.Source]
		}

		if th.TitleSource != "" {
			title, err := r.throughTitle(ctx, th, assoc, key)
			if err != nil {
				return nil, err
			}
			if title != nil {
				obj["title"] = title
			}
		}
		arr = append(arr, obj)
	}
	return arr, it.Err()
}

func (r *Renderer) throughTitle(ctx context.Context, th *blueprint.Through, assoc storage.Row, key any) (any, error) {
	if !th.TitleHop {
		return assoc[th.TitleSource], nil
	}
	trow, err := r.source.Lookup(ctx, th.Target, key)
	if errors.Is(err, storage.ErrRowNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trow[th.TitleSource], nil
}
