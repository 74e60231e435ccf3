package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/dedup"
	"github.com/mombroker/mom/internal/partition"
	"github.com/mombroker/mom/internal/replication"
	"github.com/mombroker/mom/internal/store"
	"github.com/mombroker/mom/internal/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// node bundles one node's public API and RPC server, each a real
// httptest listener, so the Router's forwarding and replication HTTP
// calls exercise a genuine network round trip rather than an in-process
// handler call.
type node struct {
	publicURL string
	store     store.Store
	router    *Router
}

func stripScheme(url string) string { return url[len("http://"):] }

// newCluster brings up n nodes sharing the same token-signing key, each
// wired with its own memstore, partitioner, and replication
// client/server, with self identified by its real public httptest
// address (so partition/forward decisions resolve to addresses the
// test's HTTP client can actually reach).
func newCluster(t *testing.T, n int, replFactor int, partitioningEnabled bool) []*node {
	t.Helper()

	nodes := make([]*node, n)
	rpcURLs := make([]string, n)
	publicEngines := make([]*gin.Engine, n)
	publicAddrs := make([]string, n)

	for i := 0; i < n; i++ {
		st := memstore.New()
		dset := dedup.New()
		replSrv := replication.NewServer(st, dset)
		rpcEngine := gin.New()
		replSrv.Register(rpcEngine)
		rpcTS := httptest.NewServer(rpcEngine)
		t.Cleanup(rpcTS.Close)
		rpcURLs[i] = stripScheme(rpcTS.URL)

		publicEngines[i] = gin.New()
		publicTS := httptest.NewServer(publicEngines[i])
		t.Cleanup(publicTS.Close)

		nodes[i] = &node{store: st, publicURL: publicTS.URL}
		publicAddrs[i] = stripScheme(publicTS.URL)
	}

	resolve := func(peerPublicAddr string) (string, error) {
		for i, a := range publicAddrs {
			if a == peerPublicAddr {
				return rpcURLs[i], nil
			}
		}
		return "", unknownPeerError(peerPublicAddr)
	}

	ta, err := authn.NewTokenAuth([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	sortedPublic := append([]string(nil), publicAddrs...)
	for i := 0; i < n; i++ {
		partitioner := partition.New(sortedPublic, replFactor, publicAddrs[i])
		replClient := replication.NewClient(resolve)
		nodes[i].router = New(publicAddrs[i], partitioningEnabled, nodes[i].store, partitioner, replClient, ta)
		nodes[i].router.Register(publicEngines[i])
	}

	return nodes
}

type unknownPeerError string

func (e unknownPeerError) Error() string { return "unknown peer: " + string(e) }

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	nodes := newCluster(t, 1, 1, false)
	base := nodes[0].publicURL

	resp, _ := doJSON(t, http.MethodPost, base+"/auth/register", RegisterRequest{Username: "alice", Password: "x"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base+"/auth/register", RegisterRequest{Username: "alice", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, base+"/auth/login", LoginRequest{Username: "alice", Password: "x"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	resp, _ = doJSON(t, http.MethodPost, base+"/auth/login", LoginRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthorizedDelete(t *testing.T) {
	nodes := newCluster(t, 1, 1, false)
	base := nodes[0].publicURL

	doJSON(t, http.MethodPost, base+"/auth/register", RegisterRequest{Username: "alice", Password: "x"})
	doJSON(t, http.MethodPost, base+"/auth/register", RegisterRequest{Username: "bob", Password: "y"})
	_, aliceLogin := doJSON(t, http.MethodPost, base+"/auth/login", LoginRequest{Username: "alice", Password: "x"})
	_, bobLogin := doJSON(t, http.MethodPost, base+"/auth/login", LoginRequest{Username: "bob", Password: "y"})
	aliceToken := aliceLogin["token"].(string)
	bobToken := bobLogin["token"].(string)

	resp, _ := doJSON(t, http.MethodPost, base+"/messages/topics?token="+aliceToken,
		NameOwnerRequest{Name: "t1", Owner: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, base+"/messages/topics/t1?token="+bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, list := doJSON(t, http.MethodGet, base+"/messages/topics", nil)
	names, _ := list["topics"].([]interface{})
	assert.Contains(t, names, "t1")
}

// TestQueueFIFOUnderConcurrentConsume is end-to-end scenario 4 of
// spec.md §8: after three serial enqueues, concurrent consumes return
// the multiset {"m1","m2","m3"} exactly once each, and a fourth call
// returns a null message.
func TestQueueFIFOUnderConcurrentConsume(t *testing.T) {
	nodes := newCluster(t, 1, 1, false)
	base := nodes[0].publicURL

	doJSON(t, http.MethodPost, base+"/auth/register", RegisterRequest{Username: "alice", Password: "x"})
	_, login := doJSON(t, http.MethodPost, base+"/auth/login", LoginRequest{Username: "alice", Password: "x"})
	token := login["token"].(string)

	doJSON(t, http.MethodPost, base+"/messages/queues?token="+token, NameOwnerRequest{Name: "work", Owner: "alice"})
	for _, content := range []string{"m1", "m2", "m3"} {
		resp, _ := doJSON(t, http.MethodPost, base+"/messages/messages/queue/work?token="+token,
			PublishRequest{Sender: "alice", Content: content})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	type result struct {
		content string
		null    bool
	}
	results := make(chan result, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, body := doJSON(t, http.MethodGet, base+"/messages/messages/queue/work?token="+token, nil)
			if body["message"] == nil {
				results <- result{null: true}
				return
			}
			msg := body["message"].(map[string]interface{})
			results <- result{content: msg["content"].(string)}
		}()
	}

	var delivered []string
	var nulls int
	for i := 0; i < 4; i++ {
		r := <-results
		if r.null {
			nulls++
			continue
		}
		delivered = append(delivered, r.content)
	}
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, delivered)
	assert.Equal(t, 1, nulls)
}

// TestRedirectToPrimary is end-to-end scenario 2/3 of spec.md §8: a
// three-node cluster with R=2, where a topic create issued against a
// non-owning node is transparently forwarded to the primary and
// replicated to the secondary, and every node's list converges.
func TestRedirectToPrimary(t *testing.T) {
	nodes := newCluster(t, 3, 2, true)

	doJSON(t, http.MethodPost, nodes[0].publicURL+"/auth/register", RegisterRequest{Username: "alice", Password: "x"})
	_, login := doJSON(t, http.MethodPost, nodes[0].publicURL+"/auth/login", LoginRequest{Username: "alice", Password: "x"})
	token := login["token"].(string)

	resp, _ := doJSON(t, http.MethodPost, nodes[0].publicURL+"/messages/topics?token="+token,
		NameOwnerRequest{Name: "news", Owner: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(50 * time.Millisecond) // let synchronous fan-out land

	for i, n := range nodes {
		_, list := doJSON(t, http.MethodGet, n.publicURL+"/messages/topics", nil)
		names, _ := list["topics"].([]interface{})
		assert.Contains(t, names, "news", "node %d should see the topic via list-aggregation or replication", i)
	}
}

// TestRedirectedRequestNeverReforwards is property P5: a request
// arriving with redirected=true is always processed locally, even when
// the receiving node is neither primary nor secondary for that name.
func TestRedirectedRequestNeverReforwards(t *testing.T) {
	nodes := newCluster(t, 3, 1, true)
	base := nodes[0].publicURL

	doJSON(t, http.MethodPost, base+"/auth/register", RegisterRequest{Username: "alice", Password: "x"})
	_, login := doJSON(t, http.MethodPost, base+"/auth/login", LoginRequest{Username: "alice", Password: "x"})
	token := login["token"].(string)

	resp, _ := doJSON(t, http.MethodPost, base+"/messages/topics?token="+token+"&redirected=true",
		NameOwnerRequest{Name: "whatever", Owner: "alice"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	topic, err := nodes[0].store.GetTopic("whatever")
	require.NoError(t, err)
	assert.Equal(t, "alice", topic.Owner)
}
