// Package config loads cluster and node configuration from the
// environment, with flag overrides for local/manual runs.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds everything a single node needs to start.
type Config struct {
	// SelfHost is this node's public API address (host:port), as it
	// appears in ClusterNodes on every node.
	SelfHost string
	// ClusterNodes is the full set of public addresses in the cluster,
	// including SelfHost. Immutable for the run.
	ClusterNodes []string
	// RPCPort, when non-zero, is the port this node listens on for
	// inter-node replication calls; when zero, the port is derived the
	// same way as a peer's (see SelfRPCAddress).
	RPCPort int
	// NodeRPCMap maps a peer's public address to its RPC address,
	// explicit overrides of the default "public port + RPCOffset" rule.
	NodeRPCMap map[string]string
	// RPCOffset is added to a node's public port to derive its RPC port
	// when NodeRPCMap has no entry for it.
	RPCOffset int

	PartitioningEnabled bool
	ReplicationFactor   int

	SecretKey            string
	AccessTokenExpiresIn time.Duration

	DatabaseURL string
}

const defaultRPCOffset = 1000

// Load builds a Config from the environment, applying overrides from the
// command-line flags in args, which Load parses itself (args may be empty).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("momd", flag.ContinueOnError)

	selfHost := fs.String("self-host", os.Getenv("SELF_HOST"), "this node's public address (host:port)")
	clusterNodes := fs.String("cluster-nodes", os.Getenv("CLUSTER_NODES"), "comma-separated peer public addresses")
	rpcPort := fs.Int("rpc-port", envInt("GRPC_PORT", 0), "this node's inter-node RPC port")
	partEnabled := fs.Bool("partitioning-enabled", envBool("PARTITIONING_ENABLED", true), "enable name-based partitioning")
	replFactor := fs.Int("replication-factor", envInt("PARTITION_REPLICATION_FACTOR", 2), "replication factor R")
	secretKey := fs.String("secret-key", os.Getenv("SECRET_KEY"), "HMAC signing key for auth tokens")
	tokenExpireMin := fs.Int("access-token-expire-minutes", envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60), "auth token lifetime in minutes")
	dbURL := fs.String("database-url", os.Getenv("DATABASE_URL"), "local store DSN")
	nodeRPCMap := fs.String("node-rpc-map", os.Getenv("NODE_RPC_MAP"), "host:port=host:rpcport pairs, comma separated")
	rpcOffset := fs.Int("rpc-offset", envInt("NODE_RPC_OFFSET", defaultRPCOffset), "port offset for deriving a peer's RPC address")

	if len(args) > 0 {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	if *selfHost == "" {
		return nil, fmt.Errorf("config: SELF_HOST is required")
	}
	if *replFactor < 1 {
		return nil, fmt.Errorf("config: PARTITION_REPLICATION_FACTOR must be >= 1")
	}

	var nodes []string
	seen := map[string]bool{*selfHost: true}
	nodes = append(nodes, *selfHost)
	if *clusterNodes != "" {
		for _, n := range strings.Split(*clusterNodes, ",") {
			n = strings.TrimSpace(n)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	sort.Strings(nodes)

	rpcMap := map[string]string{}
	if *nodeRPCMap != "" {
		for _, pair := range strings.Split(*nodeRPCMap, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("config: invalid NODE_RPC_MAP entry %q", pair)
			}
			rpcMap[kv[0]] = kv[1]
		}
	}

	cfg := &Config{
		SelfHost:             *selfHost,
		ClusterNodes:         nodes,
		RPCPort:              *rpcPort,
		NodeRPCMap:           rpcMap,
		RPCOffset:            *rpcOffset,
		PartitioningEnabled:  *partEnabled,
		ReplicationFactor:    *replFactor,
		SecretKey:            *secretKey,
		AccessTokenExpiresIn: time.Duration(*tokenExpireMin) * time.Minute,
		DatabaseURL:          *dbURL,
	}
	return cfg, nil
}

// RPCAddress derives the inter-node RPC address for a peer's public
// address: an explicit NodeRPCMap entry if present, else the peer's own
// host with its port shifted by RPCOffset.
func (c *Config) RPCAddress(peerPublicAddr string) (string, error) {
	if addr, ok := c.NodeRPCMap[peerPublicAddr]; ok {
		return addr, nil
	}
	host, portStr, err := splitHostPort(peerPublicAddr)
	if err != nil {
		return "", fmt.Errorf("config: cannot derive rpc address for %q: %w", peerPublicAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("config: non-numeric port in %q: %w", peerPublicAddr, err)
	}
	return fmt.Sprintf("%s:%d", host, port+c.RPCOffset), nil
}

// SelfRPCAddress returns the address this node should bind its RPC
// listener to: an explicit RPCPort if set, else SelfHost's port shifted
// by RPCOffset, the same derivation a peer would apply to reach us.
func (c *Config) SelfRPCAddress() (string, error) {
	if c.RPCPort != 0 {
		host, _, err := splitHostPort(c.SelfHost)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s:%d", host, c.RPCPort), nil
	}
	return c.RPCAddress(c.SelfHost)
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing port in address %q", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
