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

func (rt *Router) createTopic(c *gin.Context) {
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

	assignment, local := rt.resolve(c, req.Name, partition.Topic)
	if !local {
		body, _ := json.Marshal(req)
		if rt.forward(c, assignment.Primary, body) {
			return
		}
		metrics.RequestsRouted.WithLabelValues("fallback_local").Inc()
	}

	if err := rt.store.CreateTopic(req.Name, req.Owner); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "topic already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	metrics.RequestsRouted.WithLabelValues("local").Inc()

	rt.replClient.FanOut(rt.fanOutTargets(assignment), replication.OpTopicCreate,
		replication.Request{Name: req.Name, Owner: req.Owner})

	c.JSON(http.StatusOK, gin.H{"message": "topic created"})
}

func (rt *Router) deleteTopic(c *gin.Context) {
	principal, ok := rt.authenticate(c)
	if !ok {
		return
	}
	name := c.Param("name")

	assignment, local := rt.resolve(c, name, partition.Topic)
	if !local {
		if rt.forward(c, assignment.Primary, nil) {
			return
		}
	}

	topic, err := rt.store.GetTopic(name)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "topic not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if topic.Owner != principal && !authn.IsSystem(principal) {
		c.JSON(http.StatusForbidden, gin.H{"message": "not the topic owner"})
		return
	}

	if err := rt.store.DeleteTopic(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	rt.replClient.FanOut(rt.fanOutTargets(assignment), replication.OpTopicDelete,
		replication.Request{Name: name, Requester: principal})

	c.JSON(http.StatusOK, gin.H{"message": "topic deleted"})
}

func (rt *Router) listTopics(c *gin.Context) {
	names, err := rt.store.ListTopics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if isRedirected(c) || !rt.partitioningEnabled {
		c.JSON(http.StatusOK, gin.H{"topics": names})
		return
	}

	seen := make(map[string]bool, len(names))
	union := make([]string, 0, len(names))
	for _, n := range names {
		seen[n] = true
		union = append(union, n)
	}
	for _, peer := range rt.peersExcludingSelf(rt.partition.Nodes()) {
		remote, err := rt.replClient.ListTopics(peer)
		if err != nil {
			rt.log.Warnf("list topics from %s: %v", peer, err)
			continue
		}
		for _, n := range remote {
			if !seen[n] {
				seen[n] = true
				union = append(union, n)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"topics": union})
}

func (rt *Router) publishTopic(c *gin.Context) {
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

	assignment, local := rt.resolve(c, name, partition.Topic)
	if !local {
		body, _ := json.Marshal(req)
		if rt.forward(c, assignment.Primary, body) {
			return
		}
	}

	err := rt.store.AppendTopicMessage(name, req.Sender, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "topic not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	rt.replClient.FanOut(rt.fanOutTargets(assignment), replication.OpTopicMessage,
		replication.Request{Name: name, Sender: req.Sender, Content: req.Content})

	c.JSON(http.StatusOK, gin.H{"message": "published"})
}

func (rt *Router) getTopicMessages(c *gin.Context) {
	name := c.Param("name")
	msgs, err := rt.store.ReadTopicMessages(name)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "topic not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
