// Package elasticsearch provides a protocol-version-neutral client for the
// search cluster. Two incompatible client library generations are supported;
// the version is resolved once at startup and a matching driver backs every
// operation from then on.
package elasticsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/logger"
)

// Config holds cluster connection configuration.
type Config struct {
	URLs     []string
	CloudID  string
	Username string
	Password string

	// Version pins the protocol version (7 or 8). Zero means resolve by
	// probing the cluster.
	Version int

	// VerifyCerts controls TLS certificate verification. Honored by the
	// current protocol driver and the version probe; the legacy driver
	// keeps its historical connection behavior.
	VerifyCerts bool

	Timeout    time.Duration
	MaxRetries int
}

// Client is the stable surface all other packages talk to the cluster
// through. The embedded driver supplies the version-correct request shapes.
type Client struct {
	driver

	caps *Capabilities
	log  logger.Logger
}

// NewClient resolves the protocol version via the resolver, constructs the
// matching driver and verifies connectivity.
func NewClient(ctx context.Context, cfg *Config, resolver *Resolver, log logger.Logger) (*Client, error) {
	version, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve protocol version: %w", err)
	}
	return NewClientForVersion(ctx, cfg, version, log)
}

// NewClientForVersion constructs a client pinned to an explicit protocol
// version, bypassing resolution. Used when the version is forced (tests) or
// already known.
func NewClientForVersion(ctx context.Context, cfg *Config, version Version, log logger.Logger) (*Client, error) {
	var (
		drv driver
		err error
	)
	switch version {
	case V8:
		drv, err = newV8Driver(cfg)
	case V7:
		drv, err = newV7Driver(cfg)
	default:
		return nil, fmt.Errorf("unsupported protocol version %s", version)
	}
	if err != nil {
		return nil, err
	}

	if err := drv.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping cluster: %w", err)
	}

	log.Info("Elasticsearch client initialized",
		logger.String("protocol_version", version.String()),
	)

	return &Client{driver: drv, caps: CapabilitiesFor(version), log: log}, nil
}

// newClientWithDriver wires an arbitrary driver, for tests with fakes.
func newClientWithDriver(drv driver, log logger.Logger) *Client {
	return &Client{driver: drv, caps: CapabilitiesFor(drv.Version()), log: log}
}

// Capabilities reports which version-dependent features are available.
func (c *Client) Capabilities() *Capabilities {
	return c.caps
}
