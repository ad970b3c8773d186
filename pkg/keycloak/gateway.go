package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// HTTPClient is the outbound HTTP interface consumed by the gateway. It
// is satisfied by [*http.Client] and by test fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxResponseSize caps provider response bodies at 1MB. Discovery
// documents, key sets, and introspection responses are all far smaller;
// anything bigger indicates a misconfigured or hostile endpoint.
const maxResponseSize = 1 << 20

// initialRetryInterval seeds the exponential backoff between retry
// attempts inside a single gateway call.
const initialRetryInterval = 200 * time.Millisecond

// gateway performs all outbound HTTP to the identity provider. Every call
// runs under the circuit breaker, carries a per-call timeout, and retries
// transient failures (network errors, 5xx, 429) with exponential backoff
// up to a bounded attempt count. Permanent failures (other 4xx, malformed
// responses) are never retried.
//
// One breaker guards all provider endpoints together: the failure mode
// being protected against is the provider being down, not a single
// endpoint.
type gateway struct {
	client     HTTPClient
	breaker    *CircuitBreaker
	timeout    time.Duration
	maxRetries int
}

func newGateway(client HTTPClient, breaker *CircuitBreaker, timeout time.Duration, maxRetries int) *gateway {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &gateway{
		client:     client,
		breaker:    breaker,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

// getJSON fetches endpoint with GET and decodes the JSON response body
// into out. The operation name identifies the call in breaker errors and
// must be static.
func (g *gateway) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	return g.breaker.Execute(ctx, operation, func(ctx context.Context) error {
		return g.retry(ctx, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return backoff.Permanent(sserr.Wrapf(err, sserr.CodeInternalConfiguration,
					"keycloak: invalid %s URL", operation))
			}
			req.Header.Set("Accept", "application/json")
			return g.doJSON(req, operation, out)
		})
	})
}

// postForm sends a form-encoded POST to endpoint and decodes the JSON
// response into out. Basic auth credentials are attached when username is
// non-empty.
func (g *gateway) postForm(ctx context.Context, operation, endpoint string, form url.Values, username, password string, out any) error {
	body := form.Encode()
	return g.breaker.Execute(ctx, operation, func(ctx context.Context) error {
		return g.retry(ctx, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
				strings.NewReader(body))
			if err != nil {
				return backoff.Permanent(sserr.Wrapf(err, sserr.CodeInternalConfiguration,
					"keycloak: invalid %s URL", operation))
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/json")
			if username != "" {
				req.SetBasicAuth(username, password)
			}
			return g.doJSON(req, operation, out)
		})
	})
}

// retry runs attempt with exponential backoff for transient failures.
// Errors wrapped in backoff.Permanent stop immediately.
func (g *gateway) retry(ctx context.Context, attempt func(ctx context.Context) error) error {
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return attempt(callCtx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialRetryInterval

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(g.maxRetries)), ctx))
}

// doJSON executes the request, enforces the response size cap, maps the
// status code, and decodes the body into out (when out is non-nil).
func (g *gateway) doJSON(req *http.Request, operation string, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return sserr.Wrapf(err, sserr.CodeTimeoutDependency,
				"keycloak: %s timed out", operation)
		}
		return sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"keycloak: %s request failed", operation)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"keycloak: failed to read %s response", operation)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(operation, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"keycloak: %s returned malformed JSON", operation))
	}
	return nil
}

// statusError maps a non-2xx provider status to a platform error.
// Server-side statuses and 429 are transient and retried; everything else
// is permanent within this call.
func statusError(operation string, status int) error {
	if status >= 500 || status == http.StatusTooManyRequests {
		return sserr.Newf(sserr.CodeUnavailableDependency,
			"keycloak: %s returned status %d", operation, status)
	}
	return backoff.Permanent(sserr.Newf(sserr.CodeUnavailableDependency,
		"keycloak: %s returned status %d", operation, status))
}
