package appframe

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (any, error) {
	return c.Request(ctx, http.MethodGet, path, opts)
}

func (c *Client) Post(ctx context.Context, path string, opts *RequestOptions) (any, error) {
	return c.Request(ctx, http.MethodPost, path, opts)
}

// Request sends an authenticated request to path, which may carry a query
// string. On success it returns the decoded JSON value, or the body as a
// string for other content types. Any error it returns is a *Failure.
//
// A 401 response triggers one login followed by one retry of the request.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (any, error) {
	req, err := c.newRequest(method, path, opts)
	if err != nil {
		return nil, &Failure{Message: err.Error()}
	}
	return c.do(ctx, req, false)
}

type request struct {
	method  string
	url     url.URL
	rawPath string
	opts    RequestOptions
}

func defaultOptions() RequestOptions {
	return RequestOptions{
		Header: http.Header{
			// makes the portal answer 401 instead of redirecting to its login page
			"X-Requested-With": {"XMLHttpRequest"},
		},
	}
}

func (c *Client) newRequest(method, path string, opts *RequestOptions) (request, error) {
	pathname, query, _ := strings.Cut(path, "?")

	escaped := "/" + strings.TrimLeft(pathname, "/")
	target := *c.base
	target.RawQuery = query

	var rawPath string
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		target.Path = unescaped
		target.RawPath = escaped
	} else {
		// not a valid escaping; the portal gets the path byte for byte and
		// answers with its own error page
		target.Path = escaped
		rawPath = escaped
	}

	var merged RequestOptions
	if opts != nil {
		merged = *opts
		merged.Query = maps.Clone(opts.Query)
		if opts.Header != nil {
			merged.Header = make(http.Header, len(opts.Header))
			for k, v := range opts.Header {
				merged.Header[http.CanonicalHeaderKey(k)] = v
			}
		}
	}
	if err := mergo.Merge(&merged, defaultOptions()); err != nil {
		return request{}, err
	}

	return request{method: method, url: target, rawPath: rawPath, opts: merged}, nil
}

func (c *Client) do(ctx context.Context, req request, isRetry bool) (any, error) {
	ctx, span := tracer.Start(ctx, "client:request", trace.WithAttributes(
		attribute.String("http.method", req.method),
		attribute.String("url.path", req.url.Path),
		attribute.Bool("appframe.retry", isRetry),
	))
	defer span.End()

	res, err := c.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, &Failure{Message: err.Error()}
	}
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode()))

	if res.IsSuccess() {
		body, err := decodeBody(res)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to decode response")
			return nil, &Failure{Message: err.Error()}
		}
		return body, nil
	}

	var failure *Failure
	switch {
	case res.StatusCode() == http.StatusUnauthorized && isRetry:
		failure = newFailure(res, RerunFailedMessage)
	case res.StatusCode() == http.StatusUnauthorized:
		c.reauthCount.Add(ctx, 1)
		c.logger.DebugContext(ctx, "session expired, logging in again", "method", req.method, "path", req.url.Path)

		if login := c.Login(ctx); login.Success {
			return c.do(ctx, req, true)
		}
		failure = newFailure(res, ReauthFailedMessage)
	default:
		failure = classify(res)
	}

	span.SetStatus(codes.Error, failure.Message)
	c.logger.DebugContext(ctx, "request failed",
		"method", req.method,
		"path", req.url.Path,
		"status", failure.StatusCode,
		"err", failure.Message,
	)
	return nil, failure
}

func (c *Client) execute(ctx context.Context, req request) (*resty.Response, error) {
	if req.rawPath != "" {
		ctx = context.WithValue(ctx, rawPathKey{}, req.rawPath)
	}
	r := c.http.R().SetContext(ctx)
	for k, v := range req.opts.Header {
		r.Header[k] = v
	}
	if len(req.opts.Query) > 0 {
		r.SetQueryParamsFromValues(req.opts.Query)
	}
	if req.opts.ContentType != "" {
		r.SetHeader("Content-Type", req.opts.ContentType)
	}
	if req.opts.Body != nil {
		r.SetBody(req.opts.Body)
	}
	return r.Execute(req.method, req.url.String())
}

type rawPathKey struct{}

// sendRawPath puts a path that url.URL cannot represent on the wire as is.
func sendRawPath(_ *resty.Client, req *http.Request) error {
	if raw, ok := req.Context().Value(rawPathKey{}).(string); ok {
		req.URL.Opaque = raw
	}
	return nil
}

func decodeBody(res *resty.Response) (any, error) {
	body := res.Body()
	if !strings.Contains(res.Header().Get("Content-Type"), "application/json") {
		return string(body), nil
	}
	if len(body) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func newFailure(res *resty.Response, msg string) *Failure {
	return &Failure{
		Message:       msg,
		StatusCode:    res.StatusCode(),
		StatusMessage: statusText(res),
	}
}

// classify turns an error response into a Failure, preferring the
// diagnostic of an HTML error page over the bare status line.
func classify(res *resty.Response) *Failure {
	failure := newFailure(res, "")

	body := string(res.Body())
	if strings.Contains(strings.ToLower(body), "doctype") {
		if details := errorFromHTML(body); details != "" {
			failure.Message = fmt.Sprintf("%d - %s", failure.StatusCode, details)
			return failure
		}
	}
	failure.Message = fmt.Sprintf("%d - %s", failure.StatusCode, failure.StatusMessage)
	return failure
}

func errorFromHTML(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("#details pre").Text())
}

func statusText(res *resty.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(res.Status(), strconv.Itoa(res.StatusCode())))
	if text == "" {
		text = http.StatusText(res.StatusCode())
	}
	return text
}
