// Package httprpc is the one-shot HTTP adapter shared by the blockchain
// clients. It owns the transport tuning, upstream rate limiting, the
// status-to-error-kind mapping and the debug request/response logging.
package httprpc

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/errs"
)

// Client performs a single upstream HTTP exchange and returns the response
// body on a 2xx status.
type Client interface {
	Do(req *http.Request) ([]byte, error)
}

// HTTPClient is the production Client. Immutable after construction; shared by
// all blockchain clients.
type HTTPClient struct {
	cli     *http.Client
	limiter *rate.Limiter
}

// New creates the adapter. poolSize bounds idle connections per host; rps
// rate-limits upstream calls (0 disables the limiter). Redirects are not
// followed: an upstream redirect is treated as the final response.
func New(poolSize, rps int) *HTTPClient {
	if poolSize < 1 {
		poolSize = 1
	}
	transport := &http.Transport{
		MaxIdleConns:        config.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: poolSize,
		ForceAttemptHTTP2:   true,
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPClient{
		cli: &http.Client{
			Transport: transport,
			Timeout:   config.HTTPRequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: limiter,
	}
}

// Do sends the request and reads the full response body. Non-2xx statuses are
// mapped to typed errors carrying the body text for diagnostics.
func (c *HTTPClient) Do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, errs.Wrap(err, errs.Internal, "rate limiter wait cancelled").WithSource(errs.SourceTimeout)
		}
	}

	debug := slog.Default().Enabled(req.Context(), slog.LevelDebug)
	if debug {
		slog.Debug("upstream request",
			"method", req.Method,
			"uri", req.URL.String(),
			"headers", redactHeaders(req.Header),
			"body", requestBodyForLog(req),
		)
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, fmt.Sprintf("request to %s failed", req.URL.Host)).WithSource(errs.SourceTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "failed to read response body").WithSource(errs.SourceIo)
	}

	if debug {
		slog.Debug("upstream response",
			"method", req.Method,
			"uri", req.URL.String(),
			"status", resp.StatusCode,
			"headers", redactHeaders(resp.Header),
			"body", bodyForLog(body),
		)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	kind := kindForStatus(resp.StatusCode)
	return nil, errs.New(kind, fmt.Sprintf("upstream %s returned %d: %s", req.URL.Host, resp.StatusCode, bodyForLog(body))).
		WithSource(errs.SourceServer)
}

// kindForStatus maps an upstream HTTP status to an error kind.
func kindForStatus(status int) errs.Kind {
	switch status {
	case http.StatusBadRequest:
		return errs.BadRequest
	case http.StatusUnauthorized:
		return errs.Unauthorized
	case http.StatusNotFound:
		return errs.NotFound
	case http.StatusInternalServerError:
		return errs.InternalServer
	case http.StatusBadGateway:
		return errs.BadGateway
	case http.StatusGatewayTimeout:
		return errs.GatewayTimeout
	default:
		return errs.UnknownServerError
	}
}

// maxLoggedBody caps how much response body lands in logs and error messages.
const maxLoggedBody = 2048

func bodyForLog(body []byte) string {
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	if !utf8.Valid(body) {
		return fmt.Sprintf("<%d bytes of non-utf8 data>", len(body))
	}
	return string(body)
}

// requestBodyForLog re-reads a replayable request body for debug logging.
func requestBodyForLog(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	rc, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return ""
	}
	return bodyForLog(body)
}

// redactHeaders strips credential values before they reach the log.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if k == "Authorization" || k == "Proxy-Authorization" || k == "Cookie" {
			out[k] = "<redacted>"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}
