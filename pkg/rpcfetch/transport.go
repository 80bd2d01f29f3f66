package rpcfetch

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Default transport configuration values.
const (
	DefaultRequestTimeout      = 30 * time.Second
	DefaultDialTimeout         = 10 * time.Second
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultReadIdleTimeout     = 30 * time.Second
	DefaultPingTimeout         = 15 * time.Second
)

// TransportConfig configures the shared HTTP clients.
type TransportConfig struct {
	RequestTimeout      time.Duration
	DialTimeout         time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// ReadIdleTimeout enables HTTP/2 ping health checks on idle connections.
	ReadIdleTimeout time.Duration
	PingTimeout     time.Duration

	// TLSConfig is cloned into each transport. Nil uses the system defaults.
	TLSConfig *tls.Config
}

// DefaultTransportConfig returns a configuration with sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		RequestTimeout:      DefaultRequestTimeout,
		DialTimeout:         DefaultDialTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		ReadIdleTimeout:     DefaultReadIdleTimeout,
		PingTimeout:         DefaultPingTimeout,
	}
}

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c TransportConfig) WithDefaults() TransportConfig {
	defaults := DefaultTransportConfig()

	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaults.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = defaults.IdleConnTimeout
	}
	if c.ReadIdleTimeout == 0 {
		c.ReadIdleTimeout = defaults.ReadIdleTimeout
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = defaults.PingTimeout
	}

	return c
}

// Transports holds the three HTTP clients used by the fetch tiers. They are
// built once and shared by every poll.
type Transports struct {
	// Preferred negotiates HTTP/2 where the server offers it.
	Preferred *http.Client

	// Legacy is restricted to HTTP/1.1.
	Legacy *http.Client

	// Minimal has no connection reuse and no tuning beyond the timeout.
	Minimal *http.Client
}

// NewTransports builds the shared clients.
func NewTransports(config TransportConfig) (*Transports, error) {
	config = config.WithDefaults()

	preferred := pooledTransport(config)
	h2, err := http2.ConfigureTransports(preferred)
	if err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	h2.ReadIdleTimeout = config.ReadIdleTimeout
	h2.PingTimeout = config.PingTimeout

	legacy := pooledTransport(config)
	legacy.ForceAttemptHTTP2 = false
	// A non-nil empty map disables the automatic HTTP/2 upgrade.
	legacy.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}

	minimal := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		TLSClientConfig:   cloneTLS(config.TLSConfig),
	}

	return &Transports{
		Preferred: &http.Client{Transport: preferred, Timeout: config.RequestTimeout},
		Legacy:    &http.Client{Transport: legacy, Timeout: config.RequestTimeout},
		Minimal:   &http.Client{Transport: minimal, Timeout: config.RequestTimeout},
	}, nil
}

// CloseIdleConnections releases pooled connections on every client.
func (t *Transports) CloseIdleConnections() {
	for _, c := range []*http.Client{t.Preferred, t.Legacy, t.Minimal} {
		if c != nil {
			c.CloseIdleConnections()
		}
	}
}

func pooledTransport(config TransportConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.DialTimeout,
		TLSClientConfig:     cloneTLS(config.TLSConfig),
	}
}

func cloneTLS(c *tls.Config) *tls.Config {
	if c == nil {
		return nil
	}
	return c.Clone()
}
