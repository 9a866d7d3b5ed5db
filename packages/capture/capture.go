package capture

import (
	"reflect"

	"github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/tidwall/gjson"
)

// Extractor pulls values out of a response body so later probes can use them.
type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
	valid    bool
}

func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if gjson.ValidBytes(resp.Body) {
		e.valid = true
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	return e
}

// Extract returns the value at a gjson path, or the whole body for "".
func (e *Extractor) Extract(path string) (any, bool) {
	if !e.valid {
		if path == "" {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// String returns the value at path as text. Numbers are rendered the way
// they appear in the body.
func (e *Extractor) String(path string) (string, bool) {
	if !e.valid {
		return "", false
	}
	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// Len returns the number of elements when the body is a JSON array.
func (e *Extractor) Len() (int, bool) {
	if !e.valid || !e.bodyJSON.IsArray() {
		return 0, false
	}
	return len(e.bodyJSON.Array()), true
}

// ArrayContains reports whether the body is a JSON array holding an object
// whose field equals value. Values keep their JSON type, so the string "42"
// never matches the number 42. Elements that are not objects are skipped.
func (e *Extractor) ArrayContains(field string, value any) bool {
	if !e.valid || !e.bodyJSON.IsArray() {
		return false
	}

	found := false
	e.bodyJSON.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		v := item.Get(field)
		if v.Exists() && sameValue(v, value) {
			found = true
			return false
		}
		return true
	})
	return found
}

func sameValue(v gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return v.Type == gjson.Null
	case string:
		return v.Type == gjson.String && v.Str == w
	case float64:
		return v.Type == gjson.Number && v.Num == w
	case int:
		return v.Type == gjson.Number && v.Num == float64(w)
	case bool:
		return (v.Type == gjson.True && w) || (v.Type == gjson.False && !w)
	}
	return reflect.DeepEqual(v.Value(), want)
}

// ExtractAll captures several named paths at once. Paths that are missing
// are left out of the result.
func ExtractAll(resp *http.Response, paths map[string]string) map[string]any {
	extractor := NewExtractor(resp)
	results := make(map[string]any)

	for name, path := range paths {
		if value, ok := extractor.Extract(path); ok {
			results[name] = value
		}
	}

	return results
}
