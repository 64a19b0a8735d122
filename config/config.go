// Package config holds the H-UDP transport's tunable parameters and their
// defaults (spec §6).
package config

import "time"

// Config collects every recognized H-UDP option. Zero-value fields are not
// valid on their own; use Default() and override via functional Options,
// the pattern used by AhmadMuzakkir-reliable's ConnOption for the same kind
// of transport tuning.
type Config struct {
	MTU               int
	RetxTimeout       time.Duration
	SendWindowSize    int
	RecvWindowSize    int
	MaxRetx           int
	AckBatch          time.Duration // reserved, unused — spec §6/§9
	GapSkipTimeout    time.Duration
	SocketRecvBuffer  int
	SocketSendBuffer  int
	PeerIdleTimeout   time.Duration
}

// Default returns the spec's documented default configuration.
func Default() Config {
	return Config{
		MTU:              1200,
		RetxTimeout:      200 * time.Millisecond,
		SendWindowSize:   64,
		RecvWindowSize:   64,
		MaxRetx:          10,
		AckBatch:         5 * time.Millisecond,
		GapSkipTimeout:   200 * time.Millisecond,
		SocketRecvBuffer: 1 << 20,
		SocketSendBuffer: 1 << 20,
		PeerIdleTimeout:  30 * time.Second,
	}
}

// Option mutates a Config in place, following the functional-options idiom
// used across the retrieval pack (e.g. gomcp's server construction,
// AhmadMuzakkir-reliable's ConnOption).
type Option func(*Config)

func WithMTU(n int) Option                      { return func(c *Config) { c.MTU = n } }
func WithRetxTimeout(d time.Duration) Option     { return func(c *Config) { c.RetxTimeout = d } }
func WithSendWindowSize(n int) Option            { return func(c *Config) { c.SendWindowSize = n } }
func WithRecvWindowSize(n int) Option            { return func(c *Config) { c.RecvWindowSize = n } }
func WithMaxRetx(n int) Option                   { return func(c *Config) { c.MaxRetx = n } }
func WithGapSkipTimeout(d time.Duration) Option  { return func(c *Config) { c.GapSkipTimeout = d } }
func WithSocketRecvBuffer(n int) Option          { return func(c *Config) { c.SocketRecvBuffer = n } }
func WithSocketSendBuffer(n int) Option          { return func(c *Config) { c.SocketSendBuffer = n } }
func WithPeerIdleTimeout(d time.Duration) Option { return func(c *Config) { c.PeerIdleTimeout = d } }

// Apply builds a Config from Default() plus the given options.
func Apply(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
