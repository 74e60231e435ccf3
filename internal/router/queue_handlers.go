package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/metrics"
	"github.com/mombroker/mom/internal/partition"
	"github.com/mombroker/mom/internal/replication"
	"github.com/mombroker/mom/internal/store"
)

func (rt *Router) createQueue(c *gin.Context) {
	principal, ok := rt.authenticate(c)
	if !ok {
		return
	}
	var req NameOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Owner == "" {
		req.Owner = principal
	}

	assignment, local := rt.resolve(c, req.Name, partition.Queue)
	if !local {
		body, _ := json.Marshal(req)
		if rt.forward(c, assignment.Primary, body) {
			return
		}
	}

	if err := rt.store.CreateQueue(req.Name, req.Owner); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "queue already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	rt.replClient.FanOut(rt.fanOutTargets(assignment), replication.OpQueueCreate,
		replication.Request{Name: req.Name, Owner: req.Owner})

	c.JSON(http.StatusOK, gin.H{"message": "queue created"})
}

func (rt *Router) deleteQueue(c *gin.Context) {
	principal, ok := rt.authenticate(c)
	if !ok {
		return
	}
	name := c.Param("name")

	assignment, local := rt.resolve(c, name, partition.Queue)
	if !local {
		if rt.forward(c, assignment.Primary, nil) {
			return
		}
	}

	queue, err := rt.store.GetQueue(name)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "queue not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if queue.Owner != principal && !authn.IsSystem(principal) {
		c.JSON(http.StatusForbidden, gin.H{"message": "not the queue owner"})
		return
	}

	if err := rt.store.DeleteQueue(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	rt.replClient.FanOut(rt.fanOutTargets(assignment), replication.OpQueueDelete,
		replication.Request{Name: name, Requester: principal})

	c.JSON(http.StatusOK, gin.H{"message": "queue deleted"})
}

func (rt *Router) listQueues(c *gin.Context) {
	names, err := rt.store.ListQueues()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if isRedirected(c) || !rt.partitioningEnabled {
		c.JSON(http.StatusOK, gin.H{"queues": names})
		return
	}

	seen := make(map[string]bool, len(names))
	union := make([]string, 0, len(names))
	for _, n := range names {
		seen[n] = true
		union = append(union, n)
	}
	for _, peer := range rt.peersExcludingSelf(rt.partition.Nodes()) {
		remote, err := rt.replClient.ListQueues(peer)
		if err != nil {
			rt.log.Warnf("list queues from %s: %v", peer, err)
			continue
		}
		for _, n := range remote {
			if !seen[n] {
				seen[n] = true
				union = append(union, n)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"queues": union})
}

func (rt *Router) sendToQueue(c *gin.Context) {
	_, ok := rt.authenticate(c)
	if !ok {
		return
	}
	name := c.Param("name")
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	assignment, local := rt.resolve(c, name, partition.Queue)
	if !local {
		body, _ := json.Marshal(req)
		if rt.forward(c, assignment.Primary, body) {
			return
		}
	}

	err := rt.store.Enqueue(name, req.Sender, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "queue not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	// Queue secondaries are warm standbys only: replicated so a future
	// promotion could serve from them, but never consumed from
	// directly. See Router.consumeQueue.
	rt.replClient.FanOut(rt.fanOutTargets(assignment), replication.OpQueueEnqueue,
		replication.Request{Name: name, Sender: req.Sender, Content: req.Content})

	c.JSON(http.StatusOK, gin.H{"message": "enqueued"})
}

// consumeQueue is handled only on the primary, since a secondary's
// queue rows are not authoritative for delivery: a non-primary node
// forwards the consume and, unlike the other handlers, does not fall
// back to local handling when the forward fails. A request already
// marked redirected=true is popped locally, like any redirected request.
func (rt *Router) consumeQueue(c *gin.Context) {
	_, ok := rt.authenticate(c)
	if !ok {
		return
	}
	name := c.Param("name")

	if rt.partitioningEnabled && !isRedirected(c) {
		a := rt.partition.For(name, partition.Queue)
		if !a.IsPrimary {
			if rt.forward(c, a.Primary, nil) {
				return
			}
			// Forwarding to the primary failed: per spec.md §4.6, a
			// partition whose primary is unreachable has no automatic
			// failover, so consume must fail rather than fall through to
			// this node's own (possibly secondary, non-authoritative)
			// queue rows, which would risk double-delivery of a message
			// already popped at the primary.
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "queue primary unreachable"})
			return
		}
	}

	msg, err := rt.store.PopQueue(name)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "queue not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if msg == nil {
		metrics.QueuePops.WithLabelValues("empty").Inc()
		c.JSON(http.StatusOK, gin.H{"message": nil})
		return
	}
	metrics.QueuePops.WithLabelValues("delivered").Inc()
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
