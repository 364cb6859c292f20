package blueprint

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/metrics"
	"github.com/tablodata/tablo/pkg/schema"
)

// MaxEmbedNesting bounds recursion through embedded relations. Hitting the
// bound means the schema graph itself is broken, not the request.
const MaxEmbedNesting = 10

// ErrRecursionLimit reports that blueprint construction recursed past
// MaxEmbedNesting. It is a configuration defect and aborts the request.
var ErrRecursionLimit = errors.New("recursion limit exceeded in embedded nesting")

type cacheKey struct {
	table string
	depth int
}

// Factory builds and memoizes blueprints per (table identity, depth).
// The cache is process-wide and read-mostly; concurrent first-use builds of
// the same key may race, which only wastes a duplicate pure construction.
type Factory struct {
	log   *zap.Logger
	mu    sync.RWMutex
	cache map[cacheKey]*Blueprint
}

// NewFactory creates an empty factory.
func NewFactory(log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{
		log:   log,
		cache: make(map[cacheKey]*Blueprint),
	}
}

// Blueprint returns the cached blueprint for the table at the given
// expansion depth, building it on first use.
func (f *Factory) Blueprint(t *schema.Table, depth int) (*Blueprint, error) {
	return f.build(t, depth, 0)
}

// Invalidate drops the whole cache. Called when the schema set is reloaded;
// individual entries are never evicted.
func (f *Factory) Invalidate() {
	f.mu.Lock()
	f.cache = make(map[cacheKey]*Blueprint)
	f.mu.Unlock()
}

// build is the memoized constructor. nestingLevel only bounds recursion and
// is deliberately not part of the cache key: the shape of a blueprint does
// not depend on how deep in an embedding chain it was first requested.
func (f *Factory) build(t *schema.Table, depth, nestingLevel int) (*Blueprint, error) {
	if nestingLevel >= MaxEmbedNesting {
		return nil, fmt.Errorf("%w: table %s", ErrRecursionLimit, t.Key())
	}

	key := cacheKey{table: t.Key(), depth: depth}
	f.mu.RLock()
	bp, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		metrics.BlueprintCacheHits.Inc()
		return bp, nil
	}
	metrics.BlueprintCacheMisses.Inc()

	f.log.Debug("building blueprint",
		zap.String("table", t.Key()),
		zap.Int("depth", depth),
		zap.Int("nesting", nestingLevel))

	bp, err := f.construct(t, depth, nestingLevel)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if existing, raced := f.cache[key]; raced {
		// Another request built the same pure blueprint first; keep it so
		// callers always observe a single instance per key.
		bp = existing
	} else {
		f.cache[key] = bp
	}
	f.mu.Unlock()
	return bp, nil
}

func (f *Factory) construct(t *schema.Table, depth, nestingLevel int) (*Blueprint, error) {
	bp := &Blueprint{Table: t, Depth: depth}

	// Nested tables have no links section of their own.
	if !t.HasParentTable() {
		links, err := f.buildLinks(t)
		if err != nil {
			return nil, err
		}
		bp.Links = links
	}

	// Temporal tables expose their key as the (identification, version)
	// pair on the self link; the raw identifier fields stay out of the body.
	unwanted := make(map[string]struct{})
	if t.IsTemporal() {
		for _, id := range t.Identifier {
			unwanted[id] = struct{}{}
		}
	}

	for _, fld := range t.Fields {
		if t.HasParentTable() && (fld.ID == "id" || fld.ID == "parent") {
			continue
		}
		if _, skip := unwanted[fld.ID]; skip {
			continue
		}
		// Pass-through keys of association tables are rendered by the
		// through link of the owning relation, never as ordinary fields.
		if fld.ParentFieldID != "" {
			continue
		}
		if err := f.buildField(bp, fld, nestingLevel); err != nil {
			return nil, err
		}
	}
	return bp, nil
}

func (f *Factory) buildField(bp *Blueprint, fld *schema.Field, nestingLevel int) error {
	switch fld.Relation {
	case schema.RelationForward, schema.RelationLoose:
		f.addEmbedded(bp, fld, false, nestingLevel)
		// Single-valued relations also expose the raw related identifier.
		bp.Body = append(bp.Body, BodyField{
			Name:   fld.ID + "Id",
			Source: fld.Column(),
			Kind:   KindRelatedID,
			Schema: fld,
		})
		return nil

	case schema.RelationManyToMany:
		f.addEmbedded(bp, fld, true, nestingLevel)
		return nil

	case schema.RelationReverse:
		// Only schema-declared reverse relations exist as fields at all;
		// the summary format stays confined to the links section.
		if fld.Format != schema.FormatSummary {
			f.addEmbedded(bp, fld, true, nestingLevel)
		}
		return nil

	case schema.RelationNested:
		nested, err := f.build(fld.Related(), 0, nestingLevel+1)
		if err != nil {
			return err
		}
		bp.Nested = append(bp.Nested, &NestedField{
			Name:      fld.ID,
			Table:     fld.Related(),
			Blueprint: nested,
		})
		return nil
	}

	if fld.Format == schema.FormatBlob {
		bp.Body = append(bp.Body, BodyField{
			Name:   fld.ID,
			Source: fld.Column(),
			Kind:   KindBlob,
			Schema: fld,
		})
		return nil
	}

	bp.Body = append(bp.Body, BodyField{
		Name:   fld.ID,
		Source: fld.Column(),
		Kind:   KindScalar,
		Schema: fld,
	})
	return nil
}

// addEmbedded appends a lazily constructed embedded field. The target
// blueprint is built through the factory on first access, which keeps
// cyclic relation graphs from recursing during construction.
func (f *Factory) addEmbedded(bp *Blueprint, fld *schema.Field, many bool, nestingLevel int) {
	related := fld.Related()
	source := ""
	if !many {
		source = fld.Column()
	}
	bp.Embedded = append(bp.Embedded, &EmbeddedField{
		Name:   fld.ID,
		Field:  fld,
		Source: source,
		Many:   many,
		ref: &Ref{
			build: func() (*Blueprint, error) {
				return f.build(related, 1, nestingLevel+1)
			},
		},
	})
}

func (f *Factory) buildLinks(t *schema.Table) (*Links, error) {
	links := &Links{Self: linkShape(t)}

	for _, fld := range t.Fields {
		switch fld.Relation {
		case schema.RelationForward:
			links.Relations = append(links.Relations, &LinkField{
				Name:   fld.ID,
				Field:  fld,
				Source: fld.Column(),
				Shape:  linkShape(fld.Related()),
			})

		case schema.RelationLoose:
			links.Relations = append(links.Relations, &LinkField{
				Name:   fld.ID,
				Field:  fld,
				Source: fld.Column(),
				Shape:  looseShape(fld.Related()),
			})

		case schema.RelationManyToMany:
			th, err := buildThrough(fld)
			if err != nil {
				return nil, err
			}
			links.Relations = append(links.Relations, &LinkField{
				Name:    fld.ID,
				Field:   fld,
				Through: th,
				Many:    true,
			})

		case schema.RelationReverse:
			lf := &LinkField{
				Name:  fld.ID,
				Field: fld,
				Many:  true,
			}
			if fld.Format == schema.FormatSummary {
				lf.Summary = true
			} else {
				lf.Shape = linkShape(fld.Related())
			}
			links.Relations = append(links.Relations, lf)
		}
	}
	return links, nil
}

// linkShape resolves the field layout of a link object for the target
// table. The identifier names are schema-dependent and resolved here, once.
func linkShape(t *schema.Table) *LinkShape {
	shape := &LinkShape{
		Kind:     LinkPlain,
		Table:    t,
		IDName:   t.PrimaryID(),
		IDSource: schema.ToSnakeCase(t.PrimaryID()),
	}
	if t.HasDisplayField() {
		shape.TitleSource = schema.ToSnakeCase(t.DisplayField)
	}
	if t.IsTemporal() {
		shape.Kind = LinkTemporal
		shape.VersionKey = t.Temporal.Identifier
		shape.VersionName = t.Temporal.Identifier
		shape.VersionSource = schema.ToSnakeCase(t.Temporal.Identifier)
	}
	return shape
}

// looseShape builds the layout of a loose link: the stored value is only a
// bare identifier string, so href, title and id all derive from it.
func looseShape(t *schema.Table) *LinkShape {
	return &LinkShape{
		Kind:   LinkLoose,
		Table:  t,
		IDName: t.PrimaryID(),
	}
}

// buildThrough derives the association-row rendering of a many-to-many
// relation. Reading the raw foreign key (and any temporal copies) from the
// association row avoids a join per row and exposes attributes that only
// exist on the relationship itself.
func buildThrough(fld *schema.Field) (*Through, error) {
	through := fld.Through()
	target := fld.Related()
	owner := fld.Table()

	var sourceFK, targetFK *schema.Field
	for _, thf := range through.Fields {
		if thf.ParentFieldID == "" || thf.Relation != schema.RelationForward {
			continue
		}
		switch {
		case sourceFK == nil && thf.Related() == owner:
			sourceFK = thf
		case targetFK == nil && thf.Related() == target:
			targetFK = thf
		}
	}
	if sourceFK == nil || targetFK == nil {
		return nil, fmt.Errorf("association table %s lacks carrier fields for relation %s.%s",
			through.Key(), owner.Key(), fld.ID)
	}

	th := &Through{
		Table:      through,
		Target:     target,
		SourceFK:   sourceFK.Column(),
		HrefSource: targetFK.Column(),
	}

	temporal := target.Temporal
	if temporal == nil {
		// The implicit assumption is that non-temporal targets never have
		// compound keys, so the raw foreign key is the plain identifier.
		th.IDName = target.PrimaryID()
		th.IDSource = targetFK.Column()
	}

	if target.HasDisplayField() {
		if target.DisplayField == target.PrimaryID() {
			// Cheap: the title equals the stored foreign key.
			th.TitleSource = targetFK.Column()
		} else {
			th.TitleSource = schema.ToSnakeCase(target.DisplayField)
			th.TitleHop = true
		}
	}

	if temporal != nil {
		th.VersionKey = temporal.Identifier

		// The association row carries copies of the target's
		// identification/version pair, named after the carrier field.
		primary := targetFK.ID + schema.Capitalize(target.PrimaryID())
		if _, err := through.FieldByID(primary); err == nil {
			th.PrimaryName = target.PrimaryID()
			th.PrimarySource = schema.ToSnakeCase(primary)
		}
		version := targetFK.ID + schema.Capitalize(temporal.Identifier)
		if _, err := through.FieldByID(version); err == nil {
			th.VersionName = temporal.Identifier
			th.VersionSource = schema.ToSnakeCase(version)
		}

		// Validity bounds of the relationship itself, when recorded.
		// Dimension names are sorted so construction stays deterministic.
		names := make([]string, 0, len(temporal.Dimensions))
		for name := range temporal.Dimensions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dim := temporal.Dimensions[name]
			for _, boundary := range []string{dim.Start, dim.End} {
				if _, err := through.FieldByID(boundary); err == nil {
					th.Dimensions = append(th.Dimensions, BodyField{
						Name:   boundary,
						Source: schema.ToSnakeCase(boundary),
						Kind:   KindScalar,
					})
				}
			}
		}
	}
	return th, nil
}
