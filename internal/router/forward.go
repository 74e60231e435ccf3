package router

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mombroker/mom/internal/metrics"
)

// forward re-issues the caller's request against primary's public
// address with redirected=true appended, and copies the downstream
// response verbatim back to c. body is the (already-bound-and-consumed)
// request payload re-serialized by the caller, or nil for bodyless
// requests. It reports whether the forward succeeded; on false, the
// caller falls back to handling locally per spec.md §4.4 step 3's
// "best-effort availability" rule.
func (rt *Router) forward(c *gin.Context, primary string, body []byte) bool {
	metrics.RequestsRedirected.Inc()

	query := c.Request.URL.Query()
	query.Set("redirected", "true")

	url := "http://" + primary + c.Request.URL.Path + "?" + query.Encode()

	ctx, cancel := context.WithTimeout(c.Request.Context(), forwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, url, bytes.NewReader(body))
	if err != nil {
		rt.log.Warnf("build forward request to %s: %v", primary, err)
		metrics.RedirectFallbacks.Inc()
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rt.forwardClient.Do(req)
	if err != nil {
		rt.log.Warnf("forward to primary %s failed, falling back to local handling: %v", primary, err)
		metrics.RedirectFallbacks.Inc()
		return false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RedirectFallbacks.Inc()
		return false
	}

	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	return true
}
