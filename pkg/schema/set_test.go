package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryDoc = `
id: library
tables:
  - id: shelves
    identifier: [id]
    display: label
    fields:
      - id: id
        type: string
      - id: label
        type: string
  - id: books
    identifier: [id]
    display: title
    fields:
      - id: id
        type: string
      - id: title
        type: string
      - id: shelf
        type: string
        relation: forward
        relatedTable: shelves
        reverseRelation:
          id: books
          format: embedded
      - id: authors
        type: array
        relation: manyToMany
        relatedTable: authors
        throughTable: booksAuthors
      - id: origin
        type: string
        relation: loose
        relatedTable: places.countries
  - id: authors
    identifier: [id]
    display: name
    fields:
      - id: id
        type: string
      - id: name
        type: string
  - id: booksAuthors
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: book
        type: string
        relation: forward
        relatedTable: books
        parentField: authors
      - id: author
        type: string
        relation: forward
        relatedTable: authors
        parentField: authors
`

const placesDoc = `
id: places
tables:
  - id: countries
    identifier: [code]
    display: name
    fields:
      - id: code
        type: string
      - id: name
        type: string
`

func loadSet(t *testing.T) *Set {
	t.Helper()
	library, err := Parse([]byte(libraryDoc))
	require.NoError(t, err)
	places, err := Parse([]byte(placesDoc))
	require.NoError(t, err)
	set, err := NewSet(library, places)
	require.NoError(t, err)
	return set
}

func TestNewSetResolvesRelations(t *testing.T) {
	set := loadSet(t)

	books, err := set.Table("library", "books")
	require.NoError(t, err)
	assert.Equal(t, "library.books", books.Key())
	assert.Equal(t, "id", books.PrimaryID())

	shelf, err := books.FieldByID("shelf")
	require.NoError(t, err)
	require.NotNil(t, shelf.Related())
	assert.Equal(t, "library.shelves", shelf.Related().Key())
	assert.Equal(t, "shelf_id", shelf.Column())
	assert.Equal(t, []string{"id"}, shelf.RelatedIdentifier())

	authors, err := books.FieldByID("authors")
	require.NoError(t, err)
	require.NotNil(t, authors.Through())
	assert.Equal(t, "library.booksAuthors", authors.Through().Key())
	assert.Equal(t, "library.authors", authors.Related().Key())
}

func TestNewSetResolvesCrossDatasetLoose(t *testing.T) {
	set := loadSet(t)

	books, err := set.Table("library", "books")
	require.NoError(t, err)
	origin, err := books.FieldByID("origin")
	require.NoError(t, err)
	require.NotNil(t, origin.Related())
	assert.Equal(t, "places.countries", origin.Related().Key())
	assert.Equal(t, RelationLoose, origin.Relation)
	assert.Equal(t, "origin_id", origin.Column())
}

func TestNewSetSynthesizesReverse(t *testing.T) {
	set := loadSet(t)

	shelves, err := set.Table("library", "shelves")
	require.NoError(t, err)
	rev, err := shelves.FieldByID("books")
	require.NoError(t, err)
	assert.Equal(t, RelationReverse, rev.Relation)
	assert.Equal(t, FormatEmbedded, rev.Format)
	assert.Equal(t, "library.books", rev.Related().Key())

	forward := rev.ReverseOf()
	require.NotNil(t, forward)
	assert.Equal(t, "shelf", forward.ID)
	assert.Equal(t, "shelf_id", forward.Column())
}

func TestNewSetUnresolvedTarget(t *testing.T) {
	doc := `
id: broken
tables:
  - id: books
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: shelf
        type: string
        relation: forward
        relatedTable: missing
`
	ds, err := Parse([]byte(doc))
	require.NoError(t, err)
	_, err = NewSet(ds)
	require.Error(t, err)

	var notFound *ObjectNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "table", notFound.Kind)
	assert.Equal(t, "broken.missing", notFound.ID)
}

func TestNewSetDuplicateDataset(t *testing.T) {
	a, err := Parse([]byte(placesDoc))
	require.NoError(t, err)
	b, err := Parse([]byte(placesDoc))
	require.NoError(t, err)
	_, err = NewSet(a, b)
	assert.ErrorContains(t, err, `duplicate dataset "places"`)
}

func TestNewSetReverseCollision(t *testing.T) {
	doc := `
id: broken
tables:
  - id: shelves
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: books
        type: string
  - id: books
    identifier: [id]
    fields:
      - id: id
        type: string
      - id: shelf
        type: string
        relation: forward
        relatedTable: shelves
        reverseRelation:
          id: books
          format: embedded
`
	ds, err := Parse([]byte(doc))
	require.NoError(t, err)
	_, err = NewSet(ds)
	assert.ErrorContains(t, err, "collides with an existing field")
}

func TestFieldByIDUnknown(t *testing.T) {
	set := loadSet(t)
	books, err := set.Table("library", "books")
	require.NoError(t, err)

	_, err = books.FieldByID("nope")
	var notFound *ObjectNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "field", notFound.Kind)
}

func TestTableByKeyUnknown(t *testing.T) {
	set := loadSet(t)
	_, err := set.TableByKey("library.nope")
	var notFound *ObjectNotFoundError
	require.ErrorAs(t, err, &notFound)
}
