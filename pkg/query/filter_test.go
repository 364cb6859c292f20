package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	field, op, err := ParseFilter("name")
	require.NoError(t, err)
	assert.Equal(t, "name", field)
	assert.Equal(t, OpExact, op)

	field, op, err = ParseFilter("name[contains]")
	require.NoError(t, err)
	assert.Equal(t, "name", field)
	assert.Equal(t, "contains", op)

	field, op, err = ParseFilter("district.name[not]")
	require.NoError(t, err)
	assert.Equal(t, "district.name", field)
	assert.Equal(t, "not", op)
}

func TestParseFilterSyntaxErrors(t *testing.T) {
	var syntaxErr *FilterSyntaxError

	_, _, err := ParseFilter("name[contains")
	require.ErrorAs(t, err, &syntaxErr)
	assert.Contains(t, syntaxErr.Reason, "closing bracket")

	_, _, err = ParseFilter("name]contains[")
	require.ErrorAs(t, err, &syntaxErr)

	_, _, err = ParseFilter("namecontains]")
	require.ErrorAs(t, err, &syntaxErr)
	assert.Contains(t, syntaxErr.Reason, "open bracket")
}
