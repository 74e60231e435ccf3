// Command momd runs a single cluster node: the public messaging API,
// the inter-node replication RPC server, and the initial-sync
// reconciliation pass. Every node in the cluster runs the same binary;
// its role is entirely determined by its configuration.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mombroker/mom/internal/authn"
	"github.com/mombroker/mom/internal/config"
	"github.com/mombroker/mom/internal/dedup"
	"github.com/mombroker/mom/internal/initsync"
	"github.com/mombroker/mom/internal/logging"
	"github.com/mombroker/mom/internal/metrics"
	"github.com/mombroker/mom/internal/partition"
	"github.com/mombroker/mom/internal/replication"
	"github.com/mombroker/mom/internal/router"
	"github.com/mombroker/mom/internal/store"
	"github.com/mombroker/mom/internal/store/sqlstore"
)

func main() {
	log := logging.New("momd")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	tokenAuth, err := authn.NewTokenAuth([]byte(cfg.SecretKey), cfg.AccessTokenExpiresIn)
	if err != nil {
		log.Fatalf("authn: %v", err)
	}

	partitioner := partition.New(cfg.ClusterNodes, cfg.ReplicationFactor, cfg.SelfHost)
	dedupSet := dedup.New()
	replClient := replication.NewClient(cfg.RPCAddress)
	replServer := replication.NewServer(st, dedupSet)

	rt := router.New(cfg.SelfHost, cfg.PartitioningEnabled, st, partitioner, replClient, tokenAuth)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	publicEngine := gin.New()
	publicEngine.Use(router.LoggingMiddleware(log), router.RecoveryMiddleware(log))
	rt.Register(publicEngine)
	publicEngine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"node": cfg.SelfHost, "status": "ok"})
	})
	publicEngine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	rpcEngine := gin.New()
	rpcEngine.Use(router.LoggingMiddleware(log), router.RecoveryMiddleware(log))
	replServer.Register(rpcEngine)

	publicSrv := &http.Server{
		Addr:         addrOf(cfg.SelfHost),
		Handler:      publicEngine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	rpcAddr, err := cfg.SelfRPCAddress()
	if err != nil {
		log.Fatalf("rpc address: %v", err)
	}
	rpcSrv := &http.Server{
		Addr:         addrOf(rpcAddr),
		Handler:      rpcEngine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("public API listening on %s", publicSrv.Addr)
		if err := publicSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("public server: %v", err)
		}
	}()
	go func() {
		log.Infof("rpc server listening on %s", rpcSrv.Addr)
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("rpc server: %v", err)
		}
	}()

	go func() {
		log.Infof("starting initial sync against %d peer(s)", len(cfg.ClusterNodes)-1)
		initsync.New(cfg.SelfHost, cfg.ClusterNodes, st, replClient).Run()
		log.Infof("initial sync complete")
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("shutting down %s", cfg.SelfHost)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := publicSrv.Shutdown(ctx); err != nil {
		log.Errorf("public server shutdown: %v", err)
	}
	if err := rpcSrv.Shutdown(ctx); err != nil {
		log.Errorf("rpc server shutdown: %v", err)
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	return sqlstore.Open(cfg.DatabaseURL)
}

// addrOf strips the host from a host:port public address so the
// server binds on all interfaces, matching how containerized nodes are
// actually deployed (advertised host differs from the bind host).
func addrOf(hostPort string) string {
	for i := len(hostPort) - 1; i >= 0; i-- {
		if hostPort[i] == ':' {
			return hostPort[i:]
		}
	}
	return hostPort
}
