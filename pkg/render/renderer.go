// Package render projects storage rows through blueprints into the HAL
// output envelope: a _links section, body scalars, nested inline lists and
// optional _embedded expansions. Everything request-dependent lives here;
// blueprints stay shared and immutable.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/blueprint"
	"github.com/tablodata/tablo/pkg/query"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

// Renderer turns rows into response objects. It is safe for concurrent use.
type Renderer struct {
	base   string
	source storage.Source
	signer *BlobSigner
	log    *zap.Logger
}

// New creates a renderer. base is the external URL prefix without a trailing
// slash; signer may be nil when no blob store is configured.
func New(base string, src storage.Source, signer *BlobSigner, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{base: base, source: src, signer: signer, log: log}
}

// Options carries the per-request rendering state.
type Options struct {
	Principal *auth.Principal
	// ExpandAll embeds every authorized relation (?_expand=true).
	ExpandAll bool
	// Expand embeds the named relations (?_expandScope=a,b). Naming a
	// relation the principal cannot read is an error; ExpandAll silently
	// drops it instead.
	Expand []string
}

func (o Options) expandSet() map[string]struct{} {
	if len(o.Expand) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(o.Expand))
	for _, name := range o.Expand {
		set[name] = struct{}{}
	}
	return set
}

// child returns the options used for rendering embedded objects: expansion
// never recurses past one level.
func (o Options) child() Options {
	return Options{Principal: o.Principal}
}

// RenderObject projects one row through the blueprint. Fields the principal
// cannot read are omitted.
func (r *Renderer) RenderObject(ctx context.Context, bp *blueprint.Blueprint, row storage.Row, opts Options) (map[string]any, error) {
	out := make(map[string]any)

	if bp.Links != nil {
		links, err := r.renderLinks(ctx, bp, row, opts)
		if err != nil {
			return nil, err
		}
		out["_links"] = links
	}

	for _, bf := range bp.Body {
		if bf.Schema != nil && !opts.Principal.HasFieldAccess(bf.Schema) {
			continue
		}
		val := row[bf.Source]
		if bf.Kind == blueprint.KindBlob {
			val = r.signBlob(val)
		}
		out[bf.Name] = val
	}

	ownerKey := primaryValue(bp.Table, row)

	for _, nf := range bp.Nested {
		items, err := r.renderNested(ctx, nf, ownerKey, opts)
		if err != nil {
			return nil, err
		}
		out[nf.Name] = items
	}

	embedded, err := r.renderEmbedded(ctx, bp, row, ownerKey, opts)
	if err != nil {
		return nil, err
	}
	if len(embedded) > 0 {
		out["_embedded"] = embedded
	}
	return out, nil
}

func (r *Renderer) signBlob(val any) any {
	if val == nil || r.signer == nil {
		return val
	}
	s, ok := val.(string)
	if !ok {
		return val
	}
	return r.signer.Sign(s)
}

func (r *Renderer) renderNested(ctx context.Context, nf *blueprint.NestedField, ownerKey any, opts Options) ([]map[string]any, error) {
	it, err := r.source.Rows(ctx, storage.Query{
		Table:   nf.Table,
		Filters: []storage.Filter{{Column: storage.ParentColumn, Op: storage.OpExact, Value: ownerKey}},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	items := make([]map[string]any, 0)
	for it.Next() {
		obj, err := r.RenderObject(ctx, nf.Blueprint, it.Row(), opts.child())
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, it.Err()
}

func (r *Renderer) renderEmbedded(ctx context.Context, bp *blueprint.Blueprint, row storage.Row, ownerKey any, opts Options) (map[string]any, error) {
	requested := opts.expandSet()
	if !opts.ExpandAll && requested == nil {
		return nil, nil
	}

	embedded := make(map[string]any)
	for _, ef := range bp.Embedded {
		_, explicit := requested[ef.Name]
		if !opts.ExpandAll && !explicit {
			continue
		}
		if !opts.Principal.HasFieldAccess(ef.Field) {
			if explicit {
				return nil, &query.AccessDeniedError{
					Field:  ef.Name,
					Scopes: opts.Principal.String(),
				}
			}
			continue
		}
		target, err := ef.Blueprint()
		if err != nil {
			return nil, err
		}
		if ef.Many {
			items, err := r.embedMany(ctx, ef, target, ownerKey, bp, opts)
			if err != nil {
				return nil, err
			}
			embedded[ef.Name] = items
			continue
		}
		obj, err := r.embedOne(ctx, ef, target, row, opts)
		if err != nil {
			return nil, err
		}
		embedded[ef.Name] = obj
	}
	return embedded, nil
}

func (r *Renderer) embedOne(ctx context.Context, ef *blueprint.EmbeddedField, target *blueprint.Blueprint, row storage.Row, opts Options) (map[string]any, error) {
	key := row[ef.Source]
	if key == nil {
		return nil, nil
	}
	trow, err := r.source.Lookup(ctx, ef.Field.Related(), key)
	if errors.Is(err, storage.ErrRowNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.RenderObject(ctx, target, trow, opts.child())
}

func (r *Renderer) embedMany(ctx context.Context, ef *blueprint.EmbeddedField, target *blueprint.Blueprint, ownerKey any, bp *blueprint.Blueprint, opts Options) ([]map[string]any, error) {
	if ef.Field.Relation == schema.RelationManyToMany {
		lf := bp.Link(ef.Name)
		if lf == nil || lf.Through == nil {
			return nil, fmt.Errorf("relation %s.%s has no association layout", bp.Table.Key(), ef.Name)
		}
		return r.embedThrough(ctx, lf.Through, target, ownerKey, opts)
	}

	forward := ef.Field.ReverseOf()
	it, err := r.source.Rows(ctx, storage.Query{
		Table:   ef.Field.Related(),
		Filters: []storage.Filter{{Column: forward.Column(), Op: storage.OpExact, Value: ownerKey}},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	items := make([]map[string]any, 0)
	for it.Next() {
		obj, err := r.RenderObject(ctx, target, it.Row(), opts.child())
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, it.Err()
}

func (r *Renderer) embedThrough(ctx context.Context, th *blueprint.Through, target *blueprint.Blueprint, ownerKey any, opts Options) ([]map[string]any, error) {
	it, err := r.source.Rows(ctx, storage.Query{
		Table:   th.Table,
		Filters: []storage.Filter{{Column: th.SourceFK, Op: storage.OpExact, Value: ownerKey}},
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	items := make([]map[string]any, 0)
	for it.Next() {
		key := it.Row()[th.HrefSource]
		if key == nil {
			continue
		}
		trow, err := r.source.Lookup(ctx, th.Target, key)
		if errors.Is(err, storage.ErrRowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		obj, err := r.RenderObject(ctx, target, trow, opts.child())
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, it.Err()
}

func pathValue(v any) string {
	return url.QueryEscape(fmt.Sprint(v))
}

func primaryValue(t *schema.Table, row storage.Row) any {
	return row[schema.ToSnakeCase(t.PrimaryID())]
}

func (r *Renderer) tableURL(t *schema.Table) string {
	return fmt.Sprintf("%s/%s/%s", r.base, t.DatasetID, t.ID)
}

// objectURL builds the canonical href of one object; version selectors are
// appended as a query parameter so a later fetch resolves the same slice.
func (r *Renderer) objectURL(t *schema.Table, id any, versionKey string, version any) string {
	u := fmt.Sprintf("%s/%s", r.tableURL(t), url.PathEscape(fmt.Sprint(id)))
	if versionKey != "" && version != nil {
		u += fmt.Sprintf("?%s=%s", url.QueryEscape(versionKey), url.QueryEscape(fmt.Sprint(version)))
	}
	return u
}
