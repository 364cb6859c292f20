package query

import "strings"

// OpExact is the implied operator of a bare filter field.
const OpExact = "exact"

// operators lists the filter operators a client may use. The storage layer
// understands a few more, but those are internal to query building.
var operators = map[string]struct{}{
	OpExact:    {},
	"not":      {},
	"lt":       {},
	"lte":      {},
	"gt":       {},
	"gte":      {},
	"contains": {},
	"like":     {},
	"in":       {},
	"isnull":   {},
}

// ParseFilter splits a filter query parameter into field name and operator.
// The operator is not validated here.
//
//	ParseFilter("foo")           == ("foo", "exact")
//	ParseFilter("foo[contains]") == ("foo", "contains")
func ParseFilter(param string) (field, op string, err error) {
	bracket := strings.IndexByte(param, '[')
	if bracket == -1 {
		if strings.ContainsRune(param, ']') {
			// Brackets never occur in field names.
			return "", "", &FilterSyntaxError{Param: param, Reason: "missing open bracket ([)"}
		}
		return param, OpExact, nil
	}
	if !strings.HasSuffix(param, "]") {
		return "", "", &FilterSyntaxError{Param: param, Reason: "missing closing bracket (])"}
	}
	return param[:bracket], param[bracket+1 : len(param)-1], nil
}
