package cms

import (
	"net/url"
)

// Filter is an equality filter on a single field.
type Filter struct {
	Field string
	Value string
}

// Query holds the read-API flags supported by the content service.
type Query struct {
	Populate bool
	Sort     string // "field:asc" or "field:desc"
	Filters  []Filter
}

// Collection returns the query used for every ordered collection: related
// media populated and ascending by the explicit order field.
func Collection() Query {
	return Query{Populate: true, Sort: "order:asc"}
}

// Single returns the query for singleton resources.
func Single() Query {
	return Query{Populate: true}
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(field, value string) Query {
	out := q
	out.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return out
}

// Encode renders q as a URL query string. Keys are sorted so the output is
// stable.
func (q Query) Encode() string {
	v := url.Values{}
	if q.Populate {
		v.Set("populate", "*")
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	for _, f := range q.Filters {
		v.Add("filters["+f.Field+"][$eq]", f.Value)
	}
	return v.Encode()
}
