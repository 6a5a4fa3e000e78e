package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/vkbot/core/logger"
)

const (
	dialTimeout       = 5 * time.Second
	tlsHandshake      = 5 * time.Second
	idleConnTimeout   = 30 * time.Second
	keepAliveInterval = 30 * time.Second

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512

	component = "vk.transport"
)

// Options configure a Client.
type Options struct {
	BaseURL  string
	BasePath string
	Token    string
	// Timeout bounds each call end to end; Request.Timeout overrides it.
	Timeout time.Duration
	// HTTPClient replaces the lazily built client, mainly for tests.
	HTTPClient *http.Client
}

// FilePart is an in-memory multipart upload sent under the "file" field.
type FilePart struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Request describes one Bot API call.
type Request struct {
	// Method defaults to GET, or POST when File is set.
	Method   string
	Endpoint string
	Params   Params
	File     *FilePart
	Timeout  time.Duration
}

// Client performs Bot API calls. It is safe for concurrent use.
type Client struct {
	baseURL  string
	basePath string
	token    string
	timeout  time.Duration

	once sync.Once
	http *http.Client
}

// New builds a Client. The HTTP connection pool is created on first use.
func New(opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		basePath: opts.BasePath,
		token:    opts.Token,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
	}
	if c.basePath == "" {
		c.basePath = "/"
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

func (c *Client) httpClient() *http.Client {
	c.once.Do(func() {
		if c.http != nil {
			return
		}
		c.http = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       idleConnTimeout,
			TLSHandshakeTimeout:   tlsHandshake,
			ExpectContinueTimeout: 1 * time.Second,
		}}
		logger.Debug(context.Background(), component, "http.client.created")
	})
	return c.http
}

// Close releases idle connections.
func (c *Client) Close() {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
}

// Endpoint returns the absolute URL of endpoint without query.
func (c *Client) Endpoint(endpoint string) string {
	return c.baseURL + c.basePath + strings.TrimLeft(endpoint, "/")
}

// Do sends req and decodes the JSON object response.
// Non-2xx statuses become *ServerError or *ClientError; network and decode failures become *TransportError.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, c.transportErr(ctx, req.Endpoint, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportErr(ctx, req.Endpoint, "", err)
	}

	attrs := []slog.Attr{
		slog.String("endpoint", req.Endpoint),
		slog.String("method", httpReq.Method),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &ServerError{Endpoint: req.Endpoint, Status: resp.StatusCode, Body: c.snippet(body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		err := &ClientError{Endpoint: req.Endpoint, Status: resp.StatusCode, Body: c.snippet(body)}
		logger.Error(ctx, component, "request.failed", append(attrs, logger.Err(err))...)
		return nil, err
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, c.transportErr(ctx, req.Endpoint, KindDecode, err)
	}
	if out == nil {
		return nil, c.transportErr(ctx, req.Endpoint, KindDecode, errors.New("response is not a JSON object"))
	}

	if !isEmptyPoll(out) || logger.ShouldSampleDebug() {
		logger.Debug(ctx, component, "request.done", attrs...)
	}
	return out, nil
}

// Download fetches an absolute file URL. Non-200 answers are returned as errors.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vkteams: download request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, c.transportErr(ctx, "download", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &ServerError{Endpoint: "download", Status: resp.StatusCode, Body: c.snippet(body)}
		}
		return nil, &ClientError{Endpoint: "download", Status: resp.StatusCode, Body: c.snippet(body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportErr(ctx, "download", "", err)
	}
	return data, nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	values, err := req.Params.Values()
	if err != nil {
		return nil, fmt.Errorf("vkteams: %s: %w", req.Endpoint, err)
	}
	values.Set("token", c.token)

	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.File != nil {
			method = http.MethodPost
		}
	}

	u := c.Endpoint(req.Endpoint) + "?" + values.Encode()

	var (
		body        io.Reader
		contentType string
	)
	if req.File != nil {
		buf, ct, err := encodeFile(req.File)
		if err != nil {
			return nil, fmt.Errorf("vkteams: %s: encode file: %w", req.Endpoint, err)
		}
		body, contentType = buf, ct
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &TransportError{Endpoint: req.Endpoint, Kind: KindUnknown,
			Err: &redactedError{msg: redact(err.Error(), c.token), err: err}}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

func encodeFile(f *FilePart) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	name := f.Filename
	if name == "" {
		name = "file"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (c *Client) transportErr(ctx context.Context, endpoint string, kind ErrorKind, err error) error {
	if kind == "" {
		kind = Classify(err)
	}
	te := &TransportError{
		Endpoint: endpoint,
		Kind:     kind,
		Err:      &redactedError{msg: redact(err.Error(), c.token), err: err},
	}
	if kind == KindCanceled && ctx.Err() != nil {
		logger.Debug(ctx, component, "request.canceled", slog.String("endpoint", endpoint))
		return te
	}
	logger.Error(ctx, component, "request.failed",
		slog.String("endpoint", endpoint),
		slog.String("err_kind", string(kind)),
		logger.Err(te))
	return te
}

func (c *Client) snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return redact(s, c.token)
}

// isEmptyPoll matches {"ok":true,"events":[]} so idle long polls stay quiet.
func isEmptyPoll(r Response) bool {
	raw, ok := r["events"]
	if !ok {
		return false
	}
	trimmed := bytes.TrimSpace(raw)
	return bytes.Equal(trimmed, []byte("[]"))
}
