// Command hudp-lossysocket is a UDP proxy that injects packet loss and
// jitter between an H-UDP client and server, for exercising the
// retransmission and gap-skip paths under controlled bad-network
// conditions.
package main

import (
	"flag"
	"math/rand"
	"net"
	"sync"
	"time"

	"hudp/logger"
	"hudp/wire"
)

func main() {
	listenAddr := flag.String("listen", ":9001", "UDP address clients connect to")
	targetAddr := flag.String("target", "127.0.0.1:9000", "real H-UDP server address to forward to")
	dropPct := flag.Float64("drop-pct", 5, "percentage chance to drop any given datagram, each direction")
	jitterMs := flag.Int("jitter-ms", 20, "maximum extra delay (ms) added to a forwarded datagram, uniformly at random")
	verbose := flag.Bool("verbose", false, "log every forwarded/dropped datagram's decoded header")
	flag.Parse()

	logger.Banner("H-UDP Lossy Socket", "0.1.0")

	target, err := net.ResolveUDPAddr("udp", *targetAddr)
	if err != nil {
		logger.Fatal("resolve target: %v", err)
	}
	listenUDPAddr, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		logger.Fatal("resolve listen addr: %v", err)
	}
	front, err := net.ListenUDP("udp", listenUDPAddr)
	if err != nil {
		logger.Fatal("listen: %v", err)
	}
	defer front.Close()

	p := &proxy{
		front:    front,
		target:   target,
		dropPct:  *dropPct,
		jitterMs: *jitterMs,
		verbose:  *verbose,
		sessions: make(map[string]*session),
	}
	logger.Success("forwarding %s -> %s (drop=%.1f%% jitter<=%dms)", *listenAddr, *targetAddr, *dropPct, *jitterMs)
	p.run()
}

type session struct {
	clientAddr *net.UDPAddr
	back       *net.UDPConn
}

type proxy struct {
	front    *net.UDPConn
	target   *net.UDPAddr
	dropPct  float64
	jitterMs int
	verbose  bool

	mu       sync.Mutex
	sessions map[string]*session
}

func (p *proxy) run() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := p.front.ReadFromUDP(buf)
		if err != nil {
			logger.Error("front read: %v", err)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		sess := p.sessionFor(addr)
		p.relay(data, "client->server", func(d []byte) { sess.back.Write(d) })
	}
}

func (p *proxy) sessionFor(addr *net.UDPAddr) *session {
	key := addr.String()

	p.mu.Lock()
	sess, ok := p.sessions[key]
	p.mu.Unlock()
	if ok {
		return sess
	}

	back, err := net.DialUDP("udp", nil, p.target)
	if err != nil {
		logger.Fatal("dial target for %s: %v", key, err)
	}
	sess = &session{clientAddr: addr, back: back}

	p.mu.Lock()
	p.sessions[key] = sess
	p.mu.Unlock()

	logger.InfoCyan("new client session %s", key)
	go p.pumpBack(sess)
	return sess
}

func (p *proxy) pumpBack(sess *session) {
	buf := make([]byte, 2048)
	for {
		n, err := sess.back.Read(buf)
		if err != nil {
			logger.Warn("session %s: backend closed: %v", sess.clientAddr, err)
			return
		}
		data := append([]byte(nil), buf[:n]...)
		p.relay(data, "server->client", func(d []byte) { p.front.WriteToUDP(d, sess.clientAddr) })
	}
}

// relay applies the configured drop/jitter policy and then calls send,
// optionally after a random delay, on its own goroutine so packets can be
// reordered in flight exactly like a real lossy link would reorder them.
func (p *proxy) relay(data []byte, direction string, send func([]byte)) {
	if p.verbose {
		logger.Debug("%s: %s", direction, wire.DebugString(data))
	}
	if rand.Float64()*100 < p.dropPct {
		if p.verbose {
			logger.Warn("%s: dropped", direction)
		}
		return
	}
	if p.jitterMs <= 0 {
		send(data)
		return
	}
	delay := time.Duration(rand.Intn(p.jitterMs+1)) * time.Millisecond
	time.AfterFunc(delay, func() { send(data) })
}
