package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mombroker/mom/internal/logging"
	"github.com/mombroker/mom/internal/metrics"
)

const (
	maxAttempts  = 3
	retryBackoff = 1 * time.Second
	rpcTimeout   = 5 * time.Second
)

// Client fans a primary's local commit out to its replica set. Per
// target, it retries up to maxAttempts times with a fixed backoff; a
// TopicNotFound response triggers one ReplicateTopicCreate-then-retry
// on that same target before giving up, mirroring the source's
// auto-create-on-publish behavior.
type Client struct {
	rpcAddress func(peerPublicAddr string) (string, error)
	http       *http.Client
	log        *logging.Logger
}

// NewClient builds a Client. rpcAddress resolves a peer's public
// address to its RPC endpoint (see config.Config.RPCAddress).
func NewClient(rpcAddress func(string) (string, error)) *Client {
	return &Client{
		rpcAddress: rpcAddress,
		http:       &http.Client{Timeout: rpcTimeout},
		log:        logging.New("replication"),
	}
}

// Op names one of the RPCs a target can be asked to apply.
type Op string

const (
	OpTopicCreate  Op = "/rpc/topics/create"
	OpTopicDelete  Op = "/rpc/topics/delete"
	OpTopicMessage Op = "/rpc/topics/message"
	OpQueueCreate  Op = "/rpc/queues/create"
	OpQueueDelete  Op = "/rpc/queues/delete"
	OpQueueEnqueue Op = "/rpc/queues/enqueue"
)

// FanOut sends op to every peer in targets (public addresses), retrying
// per-target failures. Peer failures are logged and otherwise ignored:
// the primary's local commit already stands, per spec's AP tradeoff.
func (c *Client) FanOut(targets []string, op Op, req Request) {
	for _, target := range targets {
		resp, err := c.callWithRetry(target, op, req)
		if err != nil {
			c.log.Warnf("replicate %s to %s failed after retries: %v", op, target, err)
			continue
		}
		if resp.Status == StatusTopicNotFound && (op == OpTopicMessage || op == OpQueueEnqueue) {
			c.recoverMissing(target, op, req)
		}
	}
}

// recoverMissing auto-creates the missing topic/queue on target and
// retries the original append/enqueue once, per §9's preserved source
// behavior.
func (c *Client) recoverMissing(target string, op Op, req Request) {
	createOp := OpTopicCreate
	if op == OpQueueEnqueue {
		createOp = OpQueueCreate
	}
	createReq := Request{Name: req.Name, Owner: req.Owner}
	if createReq.Owner == "" {
		createReq.Owner = req.Sender
	}
	if _, err := c.callWithRetry(target, createOp, createReq); err != nil {
		c.log.Warnf("recover-create %s on %s failed: %v", req.Name, target, err)
		return
	}
	if _, err := c.callWithRetry(target, op, req); err != nil {
		c.log.Warnf("retry %s on %s after recover-create failed: %v", op, target, err)
	}
}

func (c *Client) callWithRetry(target string, op Op, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff)
		}
		resp, err := c.call(target, op, req)
		if err == nil {
			metrics.ReplicationAttempts.WithLabelValues(string(op), "success").Inc()
			return resp, nil
		}
		metrics.ReplicationAttempts.WithLabelValues(string(op), "error").Inc()
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) call(target string, op Op, req Request) (*Response, error) {
	addr, err := c.rpcAddress(target)
	if err != nil {
		return nil, fmt.Errorf("resolve rpc address for %s: %w", target, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	url := "http://" + addr + string(op)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return &resp, fmt.Errorf("peer %s: %s", target, resp.Message)
	}
	return &resp, nil
}

// ListTopics asks target for its local topic names. Used by Initial
// Sync and the Router's list-aggregation path. A 3s budget applies,
// shorter than the mutating-RPC timeout since sync calls are
// best-effort and must not stall startup.
func (c *Client) ListTopics(target string) ([]string, error) {
	return c.list(target, "/rpc/topics/list")
}

// ListQueues asks target for its local queue names.
func (c *Client) ListQueues(target string) ([]string, error) {
	return c.list(target, "/rpc/queues/list")
}

func (c *Client) list(target, path string) ([]string, error) {
	addr, err := c.rpcAddress(target)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}
