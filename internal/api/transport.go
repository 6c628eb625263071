package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/neptunelabs/fsi-client/internal/constants"
	"github.com/neptunelabs/fsi-client/internal/ratelimit"
)

// Transport is the narrow JSON interface the client operations are written
// against. Any status >= 400 becomes an *Error unless the call declared the
// status ignorable.
type Transport interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any, opts ...CallOption) error
	PostJSON(ctx context.Context, path string, form url.Values, out any, opts ...CallOption) error
	GetBool(ctx context.Context, path string, query url.Values, opts ...CallOption) (bool, error)
	PostBool(ctx context.Context, path string, form url.Values, opts ...CallOption) (bool, error)
}

// Recovery replaces the error of an ignorable status. Returning nil turns the
// call into a success.
type Recovery func(status int) error

type callOptions struct {
	method    string
	subject   string
	ignore    map[int]Recovery
	noRelogin bool
	header    nethttp.Header
}

// CallOption tunes a single Transport call.
type CallOption func(*callOptions)

// WithMethod overrides the HTTP method, e.g. DELETE for a PostBool call.
func WithMethod(method string) CallOption {
	return func(o *callOptions) { o.method = method }
}

// WithSubject names the entry the call is about, for error text.
func WithSubject(subject string) CallOption {
	return func(o *callOptions) { o.subject = subject }
}

// IgnoreStatus declares status as expected; fn decides the outcome.
func IgnoreStatus(status int, fn Recovery) CallOption {
	return func(o *callOptions) {
		if o.ignore == nil {
			o.ignore = make(map[int]Recovery)
		}
		o.ignore[status] = fn
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(nethttp.Header)
		}
		o.header.Add(key, value)
	}
}

func withoutRelogin() CallOption {
	return func(o *callOptions) { o.noRelogin = true }
}

func buildOptions(method, path string, opts []CallOption) callOptions {
	o := callOptions{method: method, subject: path}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// statusReply is the envelope of FSI service responses.
type statusReply struct {
	StatusCode int    `json:"statuscode"`
	Message    string `json:"message"`
}

// HTTPTransport implements Transport over retryablehttp. It also streams
// request and response bodies for uploads and downloads.
type HTTPTransport struct {
	base    string
	rc      *retryablehttp.Client
	stream  *nethttp.Client
	limiter *ratelimit.RateLimiter
	reauth  func(ctx context.Context) error
	agent   string
}

// zerologRetryLogger implements retryablehttp.LeveledLogger.
type zerologRetryLogger struct{}

func (zerologRetryLogger) Error(msg string, kv ...interface{}) { logKV(log.Error(), msg, kv) }
func (zerologRetryLogger) Warn(msg string, kv ...interface{})  { logKV(log.Warn(), msg, kv) }
func (zerologRetryLogger) Info(msg string, kv ...interface{})  { logKV(log.Debug(), msg, kv) }
func (zerologRetryLogger) Debug(msg string, kv ...interface{}) { logKV(log.Trace(), msg, kv) }

func logKV(ev *zerolog.Event, msg string, kv []interface{}) {
	// retryablehttp passes the request and response objects; keep them short.
	for i := 1; i < len(kv); i += 2 {
		switch v := kv[i].(type) {
		case *nethttp.Request:
			kv[i] = v.Method + " " + v.URL.Path
		case *nethttp.Response:
			kv[i] = v.Status
		}
	}
	ev.Fields(kv).Msg("retry: " + msg)
}

// checkRetry retries what retryablehttp retries by default, except for
// session expiry, which is handled by a re-login.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == nethttp.StatusUnauthorized {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (t *HTTPTransport) url(path string, query url.Values) string {
	u := t.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// call sends one JSON request and maps the response status. The returned
// response is nil when the status was ignored; in that case err carries the
// recovery result.
func (t *HTTPTransport) call(ctx context.Context, path string, query, form url.Values, o callOptions) (*nethttp.Response, bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	var body []byte
	if form != nil {
		body = []byte(form.Encode())
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, o.method, t.url(path, query), body)
	if err != nil {
		return nil, false, &Error{Key: KeyRequestFailed, Method: o.method, Subject: o.subject, Err: err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.agent)
	for k, v := range o.header {
		req.Header[k] = v
	}

	log.Trace().Str("method", o.method).Str("path", path).Msg("fsi request")
	resp, err := t.rc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, &Error{Key: KeyRequestFailed, Method: o.method, Subject: o.subject, Err: err}
	}

	if resp.StatusCode == nethttp.StatusUnauthorized && t.reauth != nil && !o.noRelogin {
		drain(resp)
		if err := t.reauth(ctx); err != nil {
			return nil, false, err
		}
		o.noRelogin = true
		return t.call(ctx, path, query, form, o)
	}

	if resp.StatusCode >= 400 {
		drain(resp)
		if fn, ok := o.ignore[resp.StatusCode]; ok {
			var rerr error
			if fn != nil {
				rerr = fn(resp.StatusCode)
			}
			return nil, true, rerr
		}
		return nil, false, statusError(o.method, o.subject, resp.StatusCode)
	}
	return resp, false, nil
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, query, form url.Values, out any, opts []CallOption) error {
	o := buildOptions(method, path, opts)
	resp, ignored, err := t.call(ctx, path, query, form, o)
	if err != nil || ignored {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Key: KeyRequestFailed, Method: o.method, Subject: o.subject, Err: err}
	}
	if err := checkEnvelope(data, o); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Key: KeyInvalidResponse, Method: o.method, Subject: o.subject, Err: err}
	}
	return nil
}

func (t *HTTPTransport) doBool(ctx context.Context, method, path string, query, form url.Values, opts []CallOption) (bool, error) {
	o := buildOptions(method, path, opts)
	resp, ignored, err := t.call(ctx, path, query, form, o)
	if ignored {
		return false, err
	}
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &Error{Key: KeyRequestFailed, Method: o.method, Subject: o.subject, Err: err}
	}
	if err := checkEnvelope(data, o); err != nil {
		return false, err
	}
	return true, nil
}

// checkEnvelope rejects bodies whose statuscode field reports a failure even
// though the HTTP status was fine.
func checkEnvelope(data []byte, o callOptions) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var reply statusReply
	if err := json.Unmarshal(trimmed, &reply); err != nil {
		return &Error{Key: KeyInvalidResponse, Method: o.method, Subject: o.subject, Err: err}
	}
	if reply.StatusCode < 400 {
		return nil
	}
	if fn, ok := o.ignore[reply.StatusCode]; ok {
		if fn == nil {
			return nil
		}
		return fn(reply.StatusCode)
	}
	e := statusError(o.method, o.subject, reply.StatusCode)
	if reply.Message != "" {
		e.Err = errors.New(reply.Message)
	}
	return e
}

// GetJSON decodes the response of a GET request into out.
func (t *HTTPTransport) GetJSON(ctx context.Context, path string, query url.Values, out any, opts ...CallOption) error {
	return t.doJSON(ctx, nethttp.MethodGet, path, query, nil, out, opts)
}

// PostJSON posts form and decodes the response into out.
func (t *HTTPTransport) PostJSON(ctx context.Context, path string, form url.Values, out any, opts ...CallOption) error {
	if form == nil {
		form = url.Values{}
	}
	return t.doJSON(ctx, nethttp.MethodPost, path, nil, form, out, opts)
}

// GetBool reports whether a GET request succeeded. It returns false with the
// recovery result for ignored statuses.
func (t *HTTPTransport) GetBool(ctx context.Context, path string, query url.Values, opts ...CallOption) (bool, error) {
	return t.doBool(ctx, nethttp.MethodGet, path, query, nil, opts)
}

// PostBool posts form and reports whether the call succeeded.
func (t *HTTPTransport) PostBool(ctx context.Context, path string, form url.Values, opts ...CallOption) (bool, error) {
	if form == nil {
		form = url.Values{}
	}
	return t.doBool(ctx, nethttp.MethodPost, path, nil, form, opts)
}

// Stream sends a request with an optional streamed body and returns the open
// response for the caller to consume. Ignorable statuses are not supported;
// every status >= 400 is an *Error. A 401 refreshes the session before the
// error is returned so a retry can succeed.
func (t *HTTPTransport) Stream(ctx context.Context, method, path string, query url.Values, body io.Reader, size int64, opts ...CallOption) (*nethttp.Response, error) {
	o := buildOptions(method, path, opts)
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if body != nil && size == 0 {
		body = nethttp.NoBody
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, t.url(path, query), body)
	if err != nil {
		return nil, &Error{Key: KeyRequestFailed, Method: method, Subject: o.subject, Err: err}
	}
	if body != nil {
		req.ContentLength = size
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	req.Header.Set("User-Agent", t.agent)
	for k, v := range o.header {
		req.Header[k] = v
	}

	resp, err := t.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Key: KeyRequestFailed, Method: method, Subject: o.subject, Err: err}
	}
	if resp.StatusCode >= 400 {
		drain(resp)
		if resp.StatusCode == nethttp.StatusUnauthorized && t.reauth != nil && !o.noRelogin {
			if err := t.reauth(ctx); err != nil {
				return nil, err
			}
		}
		return nil, statusError(method, o.subject, resp.StatusCode)
	}
	return resp, nil
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// escapePath escapes every segment of a server path, keeping the slashes.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func userAgent(version string) string {
	return fmt.Sprintf("%s/%s", constants.UserAgent, version)
}
