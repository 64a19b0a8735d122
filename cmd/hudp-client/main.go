// Command hudp-client connects to an H-UDP server, sends periodic reliable
// pings, and logs RTT/jitter statistics as it receives unreliable
// broadcasts back.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"hudp/config"
	"hudp/endpoint"
	"hudp/engine"
	"hudp/logger"
)

const version = "0.1.0"

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9000", "H-UDP server address")
	pingInterval := flag.Duration("ping-interval", time.Second, "interval between reliable pings")
	flag.Parse()

	logger.Banner("H-UDP Client", version)

	recv := func(r engine.PacketRecord) {
		logger.Debug("recv channel=%s seq=%d bytes=%d", r.Channel, r.Seq, len(r.Payload))
	}

	cfg := config.Default()
	ep, err := endpoint.NewClient(*serverAddr, cfg, recv)
	if err != nil {
		logger.Fatal("failed to connect: %v", err)
	}
	logger.Success("connected to %s from %s", *serverAddr, ep.LocalAddr())

	ctx, cancel := context.WithCancel(context.Background())
	go pingLoop(ctx, ep, *pingInterval)
	go statsLoop(ctx, ep, *pingInterval*5)

	if err := ep.RunUntilShutdown(context.Background()); err != nil {
		logger.Error("shutdown: %v", err)
	}
	cancel()
	logger.Success("client stopped")
}

func pingLoop(ctx context.Context, ep *endpoint.Endpoint, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var seq int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := fmt.Sprintf("ping-%d", seq)
			seq++
			if err := ep.SendReliable([]byte(msg)); err != nil {
				logger.Error("ping send failed: %v", err)
			}
		}
	}
}

func statsLoop(ctx context.Context, ep *endpoint.Endpoint, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := ep.Stats()
			if err != nil {
				continue
			}
			snap := st.Snapshot()
			logger.Info("tx=%d rx=%d retx=%d rtt=%.1fms rtt_jitter=%.1fms",
				snap.TxTotal, snap.RxTotal, snap.RetxCount, snap.LastRTTMs, snap.RTTJitterMs)
		}
	}
}
