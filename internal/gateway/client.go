package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// APIError is a non-2xx answer from an upstream API.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Description)
}

func newFastClient(name string, timeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		Name:                name,
		MaxConnsPerHost:     64,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      16 * 1024,
	}
}

// doRequest sends req honouring the context deadline, falling back to the
// client timeout, and records the outcome. The caller owns req and resp.
func doRequest(ctx context.Context, client *fasthttp.Client, timeout time.Duration, metrics *UpstreamMetrics, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > timeout {
		deadline = time.Now().Add(timeout)
	}

	start := time.Now()
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		metrics.RecordFailure()
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() >= 500 {
		metrics.RecordFailure()
	} else {
		metrics.RecordSuccess(time.Since(start).Milliseconds())
	}
	return nil
}

func copyBody(resp *fasthttp.Response) []byte {
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out
}
