package replication

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/dedup"
	"github.com/mombroker/mom/internal/logging"
	"github.com/mombroker/mom/internal/store"
)

// Server answers the RPCs peers send this node, applying them directly
// against the local Store. It never consults the Partitioner: whatever
// a peer asks it to replicate, it applies, trusting the caller's own
// routing decision.
type Server struct {
	store store.Store
	dedup *dedup.Set
	log   *logging.Logger
}

// NewServer builds a Server over store, using set to break replication
// cycles on ReplicateTopicMessage/ReplicateQueueEnqueue.
func NewServer(st store.Store, set *dedup.Set) *Server {
	return &Server{store: st, dedup: set, log: logging.New("replication")}
}

// Register mounts the RPC surface under r. Callers own the RPC
// endpoint's address and port; Register only wires the routes.
func (s *Server) Register(r gin.IRouter) {
	r.POST("/rpc/topics/create", s.topicCreate)
	r.POST("/rpc/topics/delete", s.topicDelete)
	r.POST("/rpc/topics/message", s.topicMessage)
	r.GET("/rpc/topics/list", s.topicList)
	r.POST("/rpc/queues/create", s.queueCreate)
	r.POST("/rpc/queues/delete", s.queueDelete)
	r.POST("/rpc/queues/enqueue", s.queueEnqueue)
	r.GET("/rpc/queues/list", s.queueList)
}

func reply(c *gin.Context, status Status, msg string) {
	c.JSON(http.StatusOK, Response{Status: status, Message: msg})
}

func (s *Server) bind(c *gin.Context) (Request, bool) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Status: StatusError, Message: err.Error()})
		return Request{}, false
	}
	return req, true
}

func (s *Server) topicCreate(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	err := s.store.CreateTopic(req.Name, req.Owner)
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		s.log.Warnf("replicate topic create %q: %v", req.Name, err)
		reply(c, StatusError, err.Error())
		return
	}
	reply(c, StatusSuccess, "")
}

func (s *Server) topicDelete(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	topic, err := s.store.GetTopic(req.Name)
	if errors.Is(err, store.ErrNotFound) {
		reply(c, StatusSuccess, "")
		return
	}
	if err == nil && topic.Owner != req.Requester && !authn.IsSystem(req.Requester) {
		reply(c, StatusError, "forbidden")
		return
	}
	if err := s.store.DeleteTopic(req.Name); err != nil {
		reply(c, StatusError, err.Error())
		return
	}
	reply(c, StatusSuccess, "")
}

func (s *Server) topicMessage(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	// Report a missing topic before touching the dedup set, so the
	// client's create-then-retry is not short-circuited as a duplicate.
	if _, err := s.store.GetTopic(req.Name); errors.Is(err, store.ErrNotFound) {
		reply(c, StatusTopicNotFound, "")
		return
	}
	if s.dedup.SeenOrRemember(dedup.Topic, req.Name, req.Sender+"\x00"+req.Content) {
		reply(c, StatusAlreadyProcessed, "")
		return
	}
	err := s.store.AppendTopicMessage(req.Name, req.Sender, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		reply(c, StatusTopicNotFound, "")
		return
	}
	if err != nil {
		reply(c, StatusError, err.Error())
		return
	}
	reply(c, StatusSuccess, "")
}

func (s *Server) topicList(c *gin.Context) {
	names, err := s.store.ListTopics()
	if err != nil {
		reply(c, StatusError, err.Error())
		return
	}
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Names: names})
}

func (s *Server) queueCreate(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	err := s.store.CreateQueue(req.Name, req.Owner)
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		s.log.Warnf("replicate queue create %q: %v", req.Name, err)
		reply(c, StatusError, err.Error())
		return
	}
	reply(c, StatusSuccess, "")
}

func (s *Server) queueDelete(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	queue, err := s.store.GetQueue(req.Name)
	if errors.Is(err, store.ErrNotFound) {
		reply(c, StatusSuccess, "")
		return
	}
	if err == nil && queue.Owner != req.Requester && !authn.IsSystem(req.Requester) {
		reply(c, StatusError, "forbidden")
		return
	}
	if err := s.store.DeleteQueue(req.Name); err != nil {
		reply(c, StatusError, err.Error())
		return
	}
	reply(c, StatusSuccess, "")
}

// queueEnqueue replicates an enqueue to a warm-standby secondary. The
// secondary never pops its copy; see router.Router.consumeQueue.
func (s *Server) queueEnqueue(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	if _, err := s.store.GetQueue(req.Name); errors.Is(err, store.ErrNotFound) {
		reply(c, StatusTopicNotFound, "")
		return
	}
	if s.dedup.SeenOrRemember(dedup.Queue, req.Name, req.Sender+"\x00"+req.Content) {
		reply(c, StatusAlreadyProcessed, "")
		return
	}
	err := s.store.Enqueue(req.Name, req.Sender, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		reply(c, StatusTopicNotFound, "")
		return
	}
	if err != nil {
		reply(c, StatusError, err.Error())
		return
	}
	reply(c, StatusSuccess, "")
}

func (s *Server) queueList(c *gin.Context) {
	names, err := s.store.ListQueues()
	if err != nil {
		reply(c, StatusError, err.Error())
		return
	}
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Names: names})
}
