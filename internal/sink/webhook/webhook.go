// Package webhook implements sink.Inserter as an HTTP POST of the insert
// envelope to an arbitrary endpoint (an ingest proxy, an emulator, or a
// collector that forwards rows to the warehouse).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Body formats accepted by WithFormat.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

func init() {
	sink.Register("webhook", func(_ context.Context, cfg sink.Config) (sink.Inserter, error) {
		if cfg.Endpoint == "" {
			return nil, errors.New("webhook: endpoint is required")
		}
		opts := []Option{WithHeaders(cfg.Extra)}
		if cfg.Token != "" {
			opts = append(opts, WithBearerToken(cfg.Token))
		}
		if cfg.Gzip {
			opts = append(opts, WithGzip())
		}
		if cfg.Format != "" {
			opts = append(opts, WithFormat(cfg.Format))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		return New(cfg.Endpoint, opts...)
	})
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures an Inserter.
type Option func(*Inserter)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(i *Inserter) { i.headers = h }
}

// WithBearerToken sets the Authorization header.
func WithBearerToken(token string) Option {
	return func(i *Inserter) { i.token = token }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(i *Inserter) { i.client.Timeout = d }
}

// WithGzip compresses request bodies.
func WithGzip() Option {
	return func(i *Inserter) { i.gzip = true }
}

// WithFormat selects the body encoding: "json" (default) or "cbor".
func WithFormat(f string) Option {
	return func(i *Inserter) { i.format = f }
}

// Inserter POSTs each insert request to
// {endpoint}/projects/{p}/datasets/{d}/tables/{t}/insertAll.
type Inserter struct {
	client   *http.Client
	endpoint string
	headers  map[string]string
	token    string
	gzip     bool
	format   string
	parsers  fastjson.ParserPool
}

// New creates an Inserter targeting endpoint.
func New(endpoint string, opts ...Option) (*Inserter, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errors.Wrap(err, "webhook: endpoint")
	}
	i := &Inserter{
		client:   &http.Client{Timeout: defaultTimeout},
		endpoint: endpoint,
		format:   FormatJSON,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.format != FormatJSON && i.format != FormatCBOR {
		return nil, errors.Newf("webhook: unknown format %q", i.format)
	}
	return i, nil
}

// InsertAll sends one POST. No retry is attempted.
func (i *Inserter) InsertAll(ctx context.Context, projectID, datasetID, tableID string, req *model.InsertRequest) (*model.InsertResponse, error) {
	body, err := i.encode(req)
	if err != nil {
		return nil, err
	}

	target, err := url.JoinPath(i.endpoint, "projects", projectID, "datasets", datasetID, "tables", tableID, "insertAll")
	if err != nil {
		return nil, errors.Wrap(err, "webhook")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "webhook")
	}
	if i.format == FormatCBOR {
		httpReq.Header.Set("Content-Type", "application/cbor")
	} else {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if i.gzip {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if i.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+i.token)
	}
	for k, v := range i.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "webhook")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "webhook: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := string(data)
		if len(b) > maxErrorBody {
			b = b[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: b}
	}
	return i.parseResponse(data)
}

func (i *Inserter) encode(req *model.InsertRequest) ([]byte, error) {
	var raw []byte
	var err error
	if i.format == FormatCBOR {
		raw, err = cbor.Marshal(req)
	} else {
		raw, err = json.Marshal(req)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "webhook: marshal %s", i.format)
	}
	if !i.gzip {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, errors.Wrap(err, "webhook: gzip")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "webhook: gzip")
	}
	return buf.Bytes(), nil
}

// parseResponse reads the insert-all reply. An empty body is a success with
// no per-row errors.
func (i *Inserter) parseResponse(data []byte) (*model.InsertResponse, error) {
	out := &model.InsertResponse{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}

	p := i.parsers.Get()
	defer i.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "webhook: parse response")
	}
	out.Kind = string(v.GetStringBytes("kind"))
	for _, ie := range v.GetArray("insertErrors") {
		e := model.InsertError{Index: ie.GetInt64("index")}
		for _, d := range ie.GetArray("errors") {
			e.Errors = append(e.Errors, model.ErrorDetail{
				Reason:    string(d.GetStringBytes("reason")),
				Location:  string(d.GetStringBytes("location")),
				Message:   string(d.GetStringBytes("message")),
				DebugInfo: string(d.GetStringBytes("debugInfo")),
			})
		}
		out.InsertErrors = append(out.InsertErrors, e)
	}
	return out, nil
}
