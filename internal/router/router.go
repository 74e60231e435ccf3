// Package router implements the Request Router of spec.md §4.4: the
// public HTTP surface plus the forward-to-primary and replication
// fan-out logic that makes the cluster's partitioning transparent to
// clients.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/logging"
	"github.com/mombroker/mom/internal/partition"
	"github.com/mombroker/mom/internal/replication"
	"github.com/mombroker/mom/internal/store"
)

// Router wires the public API to the local Store, the Partitioner, and
// the Replication Transport. One Router runs per node.
type Router struct {
	self                string
	partitioningEnabled bool

	store      store.Store
	partition  *partition.Partitioner
	replClient *replication.Client
	tokenAuth  *authn.TokenAuth

	forwardClient *http.Client
	log           *logging.Logger
}

const forwardTimeout = 5 * time.Second

// New builds a Router. self is this node's own public address, used to
// exclude itself from fan-out target lists.
func New(self string, partitioningEnabled bool, st store.Store, p *partition.Partitioner, rc *replication.Client, ta *authn.TokenAuth) *Router {
	return &Router{
		self:                self,
		partitioningEnabled: partitioningEnabled,
		store:               st,
		partition:           p,
		replClient:          rc,
		tokenAuth:           ta,
		forwardClient:       &http.Client{Timeout: forwardTimeout},
		log:                 logging.New("router"),
	}
}

// Register mounts the public HTTP surface under r.
func (rt *Router) Register(r gin.IRouter) {
	auth := r.Group("/auth")
	auth.POST("/register", rt.register)
	auth.POST("/login", rt.login)
	auth.GET("/users", rt.listUsers)

	msg := r.Group("/messages")
	msg.POST("/topics", rt.createTopic)
	msg.DELETE("/topics/:name", rt.deleteTopic)
	msg.GET("/topics", rt.listTopics)
	msg.POST("/queues", rt.createQueue)
	msg.DELETE("/queues/:name", rt.deleteQueue)
	msg.GET("/queues", rt.listQueues)
	msg.POST("/messages/topic/:name", rt.publishTopic)
	msg.GET("/messages/topic/:name", rt.getTopicMessages)
	msg.POST("/messages/queue/:name", rt.sendToQueue)
	msg.GET("/messages/queue/:name", rt.consumeQueue)
}

func isRedirected(c *gin.Context) bool {
	return c.Query("redirected") == "true"
}

// fanOutTargets is the peer set a successful local write must
// replicate to. With partitioning disabled every node serves every
// request, so the fan-out target is every peer; otherwise it is the
// assignment's responsible set minus self.
func (rt *Router) fanOutTargets(a partition.Assignment) []string {
	if !rt.partitioningEnabled {
		return rt.peersExcludingSelf(rt.partition.Nodes())
	}
	return rt.peersExcludingSelf(a.AllResponsible())
}

func (rt *Router) peersExcludingSelf(nodes []string) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n != rt.self {
			out = append(out, n)
		}
	}
	return out
}

// resolve applies the routing algorithm of spec.md §4.4 step 2-3: it
// decides whether this node should handle name/kind locally, and if
// not, who the primary is. redirected requests are always handled
// locally regardless of partition ownership, which is what stops a
// second forwarding hop (P5).
func (rt *Router) resolve(c *gin.Context, name string, kind partition.Kind) (assignment partition.Assignment, handleLocally bool) {
	if !rt.partitioningEnabled {
		return partition.Assignment{IsPrimary: true}, true
	}
	a := rt.partition.For(name, kind)
	if isRedirected(c) {
		return a, true
	}
	return a, a.IsResponsible()
}
