package probe

import (
	"context"
	"net/http"

	"github.com/abdul-hamid-achik/statusprobe/packages/assertions"
	"github.com/abdul-hamid-achik/statusprobe/packages/capture"
	httpclient "github.com/abdul-hamid-achik/statusprobe/packages/http"
)

// Prober runs the endpoint probes against one API base.
type Prober struct {
	client     *httpclient.Client
	apiBase    string
	clientName string
	headers    map[string]string
}

type Option func(*Prober)

// WithClientName overrides the client_name sent by CreateStatus.
func WithClientName(name string) Option {
	return func(p *Prober) {
		if name != "" {
			p.clientName = name
		}
	}
}

// WithHeader adds a header to every probe request.
func WithHeader(key, value string) Option {
	return func(p *Prober) {
		p.headers[key] = value
	}
}

// New returns a Prober for apiBase, which is the backend URL plus the API
// prefix, e.g. https://example.com/api.
func New(client *httpclient.Client, apiBase string, opts ...Option) *Prober {
	p := &Prober{
		client:     client,
		apiBase:    apiBase,
		clientName: DefaultClientName,
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// APIBase returns the base the probes are built on.
func (p *Prober) APIBase() string {
	return p.apiBase
}

func (p *Prober) newRequest(method, path string) *httpclient.Request {
	req := httpclient.NewRequest(method, p.apiBase+path)
	for k, v := range p.headers {
		req.SetHeader(k, v)
	}
	return req
}

func (p *Prober) send(ctx context.Context, out *Outcome, req *httpclient.Request) (*httpclient.Response, error) {
	out.Request = req
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Response = resp
	return resp, nil
}

func (out *Outcome) check(r *assertions.Result) bool {
	out.Assertions = append(out.Assertions, r)
	return r.Passed
}

// Root checks GET {base}/ answers 200 with message "Hello World".
func (p *Prober) Root(ctx context.Context) (*Outcome, error) {
	out := &Outcome{}
	resp, err := p.send(ctx, out, p.newRequest(http.MethodGet, "/"))
	if err != nil {
		return out, err
	}

	ev := assertions.NewEvaluator(resp)
	if !out.check(ev.Status(http.StatusOK)) {
		return out, newResponseError(ErrUnexpectedStatus, resp,
			"Root endpoint failed with status %d", resp.StatusCode)
	}
	if !out.check(ev.JSON()) {
		return out, newResponseError(ErrInvalidJSON, resp,
			"Root endpoint returned invalid JSON: %s", resp.Excerpt(200))
	}
	if !out.check(ev.Equals("message", RootMessage)) {
		return out, newResponseError(ErrUnexpectedBody, resp,
			"Root endpoint returned unexpected data: %s", resp.BodyString())
	}

	out.Message = "Root endpoint working correctly"
	return out, nil
}

// CreateStatus posts a status check and returns the id the backend gave it,
// decoded from JSON so its type is kept for the list search.
func (p *Prober) CreateStatus(ctx context.Context) (*Outcome, any, error) {
	out := &Outcome{}
	req := p.newRequest(http.MethodPost, "/status")
	if _, err := req.SetJSON(StatusCheckRequest{ClientName: p.clientName}); err != nil {
		return out, nil, err
	}

	resp, err := p.send(ctx, out, req)
	if err != nil {
		return out, nil, err
	}

	ev := assertions.NewEvaluator(resp)
	if !out.check(ev.Status(http.StatusOK)) {
		rerr := newResponseError(ErrUnexpectedStatus, resp,
			"POST /status failed with status %d", resp.StatusCode)
		rerr.EchoBody = true
		return out, nil, rerr
	}
	if !out.check(ev.JSON()) {
		return out, nil, newResponseError(ErrInvalidJSON, resp,
			"POST /status returned invalid JSON: %s", resp.Excerpt(200))
	}
	if !out.check(ev.Schema(statusCheckSchemaName, statusCheckSchema)) {
		return out, nil, newResponseError(ErrUnexpectedBody, resp,
			"POST /status returned incomplete data: %s", resp.BodyString())
	}

	out.Captures = capture.ExtractAll(resp, map[string]string{
		"id":          "id",
		"client_name": "client_name",
		"timestamp":   "timestamp",
	})
	id, _ := capture.NewExtractor(resp).Extract("id")

	out.Message = "POST /status endpoint working correctly"
	return out, id, nil
}

// ListStatus checks GET {base}/status answers 200 with a JSON array. When the
// array is not empty it must hold createdID; a missing id only yields a
// warning. An empty array passes without the search.
func (p *Prober) ListStatus(ctx context.Context, createdID any) (*Outcome, error) {
	out := &Outcome{}
	resp, err := p.send(ctx, out, p.newRequest(http.MethodGet, "/status"))
	if err != nil {
		return out, err
	}

	ev := assertions.NewEvaluator(resp)
	if !out.check(ev.Status(http.StatusOK)) {
		return out, newResponseError(ErrUnexpectedStatus, resp,
			"GET /status failed with status %d", resp.StatusCode)
	}
	if !out.check(ev.JSON()) {
		return out, newResponseError(ErrInvalidJSON, resp,
			"GET /status returned invalid JSON: %s", resp.Excerpt(200))
	}
	if !out.check(ev.Schema(statusCheckListSchemaName, statusCheckListSchema)) {
		return out, newResponseError(ErrUnexpectedBody, resp,
			"GET /status returned non-list data: %s", resp.Excerpt(200))
	}

	extractor := capture.NewExtractor(resp)
	count, _ := extractor.Len()
	out.Captures = map[string]any{"count": count}

	switch {
	case count == 0:
		out.Message = "GET /status endpoint working (empty list)"
	case extractor.ArrayContains("id", createdID):
		out.Message = "GET /status endpoint working correctly"
	default:
		out.Warning = true
		out.Message = "GET /status working but created item not found"
	}
	return out, nil
}
