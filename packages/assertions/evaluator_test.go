package assertions

import (
	"testing"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createResponse(statusCode int, body string, headers map[string]string) *http.Response {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &http.Response{
		StatusCode: statusCode,
		Status:     "",
		Headers:    headers,
		Body:       []byte(body),
		Duration:   100 * time.Millisecond,
	}
}

const statusCheckSchema = `{
	"type": "object",
	"required": ["id", "client_name", "timestamp"]
}`

func TestEvaluator_Status(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{}`, nil))

	result := e.Status(200)
	assert.True(t, result.Passed)
	assert.Equal(t, 200, result.Actual)
	assert.Equal(t, "status", result.Subject)

	e = NewEvaluator(createResponse(500, `oops`, nil))
	result = e.Status(200)
	assert.False(t, result.Passed)
	assert.Equal(t, 500, result.Actual)
	assert.Contains(t, result.Message, "got 500")
}

func TestEvaluator_JSONIgnoresContentType(t *testing.T) {
	resp := createResponse(200, `{"message": "Hello World"}`, map[string]string{"Content-Type": "text/plain"})
	e := NewEvaluator(resp)

	assert.True(t, e.JSON().Passed)
	assert.True(t, e.Equals("message", "Hello World").Passed)
}

func TestEvaluator_JSONInvalid(t *testing.T) {
	e := NewEvaluator(createResponse(200, `<html>nope</html>`, nil))

	result := e.JSON()
	assert.False(t, result.Passed)
	assert.Equal(t, "response body is not JSON", result.Message)
	assert.False(t, e.Equals("message", "Hello World").Passed)
}

func TestEvaluator_Equals(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{"message": "Hello World", "count": 3, "user": {"name": "John"}}`, nil))

	tests := []struct {
		name     string
		path     string
		expected any
		passed   bool
	}{
		{
			name:     "exact string",
			path:     "message",
			expected: "Hello World",
			passed:   true,
		},
		{
			name:     "different string",
			path:     "message",
			expected: "Goodbye",
			passed:   false,
		},
		{
			name:     "case matters",
			path:     "message",
			expected: "hello world",
			passed:   false,
		},
		{
			name:     "numeric by value",
			path:     "count",
			expected: 3,
			passed:   true,
		},
		{
			name:     "number is not a string",
			path:     "count",
			expected: "3",
			passed:   false,
		},
		{
			name:     "nested path",
			path:     "user.name",
			expected: "John",
			passed:   true,
		},
		{
			name:     "missing path",
			path:     "missing",
			expected: "x",
			passed:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Equals(tt.path, tt.expected)
			assert.Equal(t, tt.passed, result.Passed, result.Message)
			assert.Equal(t, "body."+tt.path, result.Subject)
		})
	}
}

func TestEvaluator_Exists(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{"id": "abc123", "timestamp": null}`, nil))

	assert.True(t, e.Exists("id").Passed)
	assert.True(t, e.Exists("timestamp").Passed)

	result := e.Exists("client_name")
	assert.False(t, result.Passed)
	assert.Equal(t, "body.client_name does not exist", result.Message)
}

func TestEvaluator_Type(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"array", `[{"id": "a"}]`, "array"},
		{"empty array", `[]`, "array"},
		{"object", `{"id": "a"}`, "object"},
		{"string", `"text"`, "string"},
		{"number", `42`, "number"},
		{"boolean", `true`, "boolean"},
		{"null", `null`, "null"},
		{"not json", `not json`, "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(createResponse(200, tt.body, nil))
			result := e.Type("", tt.expected)
			assert.True(t, result.Passed, result.Message)
			assert.Equal(t, tt.expected, result.Actual)
		})
	}
}

func TestEvaluator_Schema(t *testing.T) {
	t.Run("all required fields", func(t *testing.T) {
		e := NewEvaluator(createResponse(200, `{"id": "abc123", "client_name": "c", "timestamp": "2024-01-01T00:00:00Z"}`, nil))
		result := e.Schema("status_check", statusCheckSchema)
		assert.True(t, result.Passed, result.Message)
		assert.Equal(t, "status_check", result.Expected)
	})

	t.Run("numeric timestamp", func(t *testing.T) {
		e := NewEvaluator(createResponse(200, `{"id": "abc123", "client_name": "c", "timestamp": 1704067200}`, nil))
		assert.True(t, e.Schema("status_check", statusCheckSchema).Passed)
	})

	t.Run("missing field", func(t *testing.T) {
		e := NewEvaluator(createResponse(200, `{"id": "abc123", "client_name": "c"}`, nil))
		result := e.Schema("status_check", statusCheckSchema)
		require.False(t, result.Passed)
		assert.Contains(t, result.Message, "timestamp")
	})

	t.Run("array instead of object", func(t *testing.T) {
		e := NewEvaluator(createResponse(200, `[]`, nil))
		assert.False(t, e.Schema("status_check", statusCheckSchema).Passed)
	})

	t.Run("not json", func(t *testing.T) {
		e := NewEvaluator(createResponse(200, `Internal Server Error`, nil))
		result := e.Schema("status_check", statusCheckSchema)
		assert.False(t, result.Passed)
		assert.Equal(t, "response body is not JSON", result.Message)
	})
}

func TestAllPassed(t *testing.T) {
	ok := &Result{Passed: true}
	bad := &Result{Passed: false, Subject: "status"}

	assert.True(t, AllPassed(nil))
	assert.True(t, AllPassed([]*Result{ok, ok}))
	assert.False(t, AllPassed([]*Result{ok, bad}))
	assert.Same(t, bad, FirstFailure([]*Result{ok, bad}))
	assert.Nil(t, FirstFailure([]*Result{ok}))
}
