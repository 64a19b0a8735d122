// Command hudp-server runs an H-UDP server endpoint: it accepts client
// connections, echoes reliable traffic back as an unreliable snapshot
// broadcast, and exposes Prometheus metrics.
package main

import (
	"context"
	"flag"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"

	"hudp/config"
	"hudp/endpoint"
	"hudp/engine"
	"hudp/logger"
)

const version = "0.1.0"

func main() {
	listenAddr := flag.String("listen", ":9000", "UDP address to listen on")
	metricsAddr := flag.String("metrics", ":9100", "HTTP address to serve Prometheus metrics on")
	maxLogMsgsPerSec := flag.Float64("max-log-rate", 200, "demo-only cap on how many inbound deliveries get debug-logged per second")
	flag.Parse()

	logger.Banner("H-UDP Server", version)

	logLimiter := rate.NewLimiter(rate.Limit(*maxLogMsgsPerSec), int(*maxLogMsgsPerSec))

	var epRef atomic.Pointer[endpoint.Endpoint]

	recv := func(r engine.PacketRecord) {
		if logLimiter.Allow() {
			logger.Debug("recv channel=%s seq=%d bytes=%d skipped=%v", r.Channel, r.Seq, len(r.Payload), r.Skipped)
		}
		if r.Channel != engine.ChannelReliable {
			return
		}
		if ep := epRef.Load(); ep != nil {
			ep.BroadcastUnreliable(r.Payload)
		}
	}

	sink := engine.EventSinkFunc(func(e engine.Event) {
		switch e.Kind {
		case engine.EventDropMaxRetx:
			logger.Warn("peer %s: dropped seq %d after %d retransmissions", e.Peer, e.Seq, e.RetxN)
		case engine.EventSkipGap:
			logger.Warn("peer %s: gap-skip at seq %d", e.Peer, e.Seq)
		case engine.EventError:
			logger.Error("transport error: %v", e.Err)
		}
	})

	cfg := config.Default()
	ep, err := endpoint.NewServer(*listenAddr, cfg, recv, endpoint.WithEventSink(sink))
	if err != nil {
		logger.Fatal("failed to start server: %v", err)
	}
	epRef.Store(ep)
	logger.Success("listening on %s", ep.LocalAddr())

	go func() {
		logger.Info("metrics available at http://%s/metrics", *metricsAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", ep.MetricsHandler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped: %v", err)
		}
	}()

	if err := ep.RunUntilShutdown(context.Background()); err != nil {
		logger.Error("shutdown: %v", err)
	}
	logger.Success("server stopped")
}
