package assertions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// Operators reported in Result.Operator.
const (
	OpEquals = "=="
	OpExists = "exists"
	OpType   = "type"
	OpSchema = "schema"
)

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

// Evaluator checks a single response. The body is parsed as JSON whenever it
// is valid JSON, whatever Content-Type the server declared.
type Evaluator struct {
	response  *http.Response
	bodyJSON  gjson.Result
	validJSON bool
}

func NewEvaluator(resp *http.Response) *Evaluator {
	e := &Evaluator{
		response: resp,
	}
	if gjson.ValidBytes(resp.Body) {
		e.validJSON = true
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	return e
}

// Body returns the parsed body; it is the zero Result when the body is not JSON.
func (e *Evaluator) Body() gjson.Result {
	return e.bodyJSON
}

// Status checks the response status code.
func (e *Evaluator) Status(expected int) *Result {
	result := &Result{
		Subject:  "status",
		Operator: OpEquals,
		Expected: expected,
		Actual:   e.response.StatusCode,
	}
	if e.response.StatusCode == expected {
		result.Passed = true
		return result
	}
	result.Message = fmt.Sprintf("expected status %d, got %d", expected, e.response.StatusCode)
	return result
}

// JSON checks that the body parses as JSON.
func (e *Evaluator) JSON() *Result {
	result := &Result{
		Subject:  "body",
		Operator: OpType,
		Expected: "json",
		Passed:   e.validJSON,
	}
	if !e.validJSON {
		result.Actual = e.response.Excerpt(200)
		result.Message = "response body is not JSON"
		return result
	}
	result.Actual = "json"
	return result
}

// Equals checks that the value at a gjson path equals expected. Strings must
// match exactly; numbers compare by value.
func (e *Evaluator) Equals(path string, expected any) *Result {
	result := &Result{
		Subject:  subjectFor(path),
		Operator: OpEquals,
		Expected: expected,
	}

	actual, ok := e.value(path)
	result.Actual = actual
	if !ok {
		result.Message = fmt.Sprintf("%s not found", result.Subject)
		return result
	}

	result.Passed, result.Message = equals(actual, expected)
	return result
}

// Exists checks that a gjson path is present in the body.
func (e *Evaluator) Exists(path string) *Result {
	result := &Result{
		Subject:  subjectFor(path),
		Operator: OpExists,
		Expected: true,
	}
	actual, ok := e.value(path)
	result.Actual = actual
	result.Passed = ok
	if !ok {
		result.Message = fmt.Sprintf("%s does not exist", result.Subject)
	}
	return result
}

// Type checks the JSON type of the value at path ("" for the whole body).
func (e *Evaluator) Type(path, expected string) *Result {
	result := &Result{
		Subject:  subjectFor(path),
		Operator: OpType,
		Expected: expected,
	}

	target := e.bodyJSON
	if path != "" {
		target = e.bodyJSON.Get(path)
	}
	actualType := jsonType(target, e.validJSON)
	result.Actual = actualType

	if actualType == expected {
		result.Passed = true
		return result
	}
	result.Message = fmt.Sprintf("expected type %s, got %s", expected, actualType)
	return result
}

// Schema validates the raw body against a JSON schema document. name is only
// used for reporting.
func (e *Evaluator) Schema(name, schema string) *Result {
	result := &Result{
		Subject:  "body",
		Operator: OpSchema,
		Expected: name,
	}

	if !e.validJSON {
		result.Actual = e.response.Excerpt(200)
		result.Message = "response body is not JSON"
		return result
	}

	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(e.response.Body)

	validation, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		result.Message = fmt.Sprintf("schema validation error: %v", err)
		return result
	}

	if validation.Valid() {
		result.Passed = true
		result.Actual = name
		return result
	}

	var errs []string
	for _, desc := range validation.Errors() {
		errs = append(errs, desc.String())
	}
	result.Actual = errs
	result.Message = fmt.Sprintf("schema validation failed: %s", strings.Join(errs, "; "))
	return result
}

func (e *Evaluator) value(path string) (any, bool) {
	if !e.validJSON {
		return nil, false
	}
	if path == "" {
		return e.bodyJSON.Value(), true
	}
	r := e.bodyJSON.Get(path)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

func subjectFor(path string) string {
	if path == "" {
		return "body"
	}
	return "body." + path
}

func jsonType(r gjson.Result, valid bool) string {
	if !valid || !r.Exists() {
		return "missing"
	}
	switch {
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	}
	switch r.Type {
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	}
	return "unknown"
}

func equals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}

	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if aOk && eOk && actualNum == expectedNum {
		return true, ""
	}

	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// AllPassed reports whether every result passed. It is true for no results.
func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failing result, or nil.
func FirstFailure(results []*Result) *Result {
	for _, r := range results {
		if !r.Passed {
			return r
		}
	}
	return nil
}
