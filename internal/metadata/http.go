package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/fieldkit/internal/ir"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 15 * time.Second

// maxBody caps a provider response body.
const maxBody = 10 * 1024 * 1024

// HTTPProvider fetches doctypes over HTTP.
type HTTPProvider struct {
	baseURL   string
	client    *http.Client
	validator *Validator
	logger    *slog.Logger
}

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithHTTPClient replaces the default client. The client's own Timeout is
// used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProvider) { p.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.client = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *HTTPProvider) { p.logger = l }
}

// NewHTTP creates a provider rooted at baseURL (scheme and host, optional
// path prefix, no trailing slash required).
func NewHTTP(baseURL string, opts ...Option) (*HTTPProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("metadata: invalid base url %q", baseURL)
	}
	v, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	p := &HTTPProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: DefaultTimeout},
		validator: v,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// envelope is the Frappe response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// GetDocType fetches and validates one doctype.
func (p *HTTPProvider) GetDocType(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	const op = "metadata.get_doctype"
	if name == "" {
		return nil, ir.Errorf(ir.ErrCodeRemoteFetch, op, name, "empty doctype name")
	}

	endpoint := p.baseURL + "/api/resource/DocType/" + url.PathEscape(name)
	data, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, op, name, err)
	}

	if err := p.validator.Validate(data); err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, op, name, err)
	}

	var schema ir.DocTypeSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, op, name, fmt.Errorf("decode doctype: %w", err))
	}
	if schema.Name != name {
		return nil, ir.Errorf(ir.ErrCodeRemoteFetch, op, name, "provider returned doctype %q", schema.Name)
	}

	if odd := ir.UnnormalizedFieldnames(schema.Fields); len(odd) > 0 {
		p.logger.Warn("doctype has fieldnames not in NFC form", "name", name, "fieldnames", odd)
	}

	p.logger.Debug("fetched doctype", "name", name, "fields", len(schema.Fields))
	return &schema, nil
}

// ListDocTypes returns every doctype name the provider serves.
func (p *HTTPProvider) ListDocTypes(ctx context.Context) ([]string, error) {
	const op = "metadata.list_doctypes"

	q := url.Values{}
	q.Set("fields", `["name"]`)
	q.Set("limit_page_length", "0")
	data, err := p.get(ctx, p.baseURL+"/api/resource/DocType?"+q.Encode())
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, op, "", err)
	}

	var rows []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, op, "", fmt.Errorf("decode list: %w", err))
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// get issues a GET and returns the unwrapped "data" member.
func (p *HTTPProvider) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("response has no data member")
	}
	return env.Data, nil
}
