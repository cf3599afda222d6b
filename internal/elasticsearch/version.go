package elasticsearch

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/support-search/internal/logger"
)

// Version identifies the active client protocol major version.
type Version int

// Supported protocol versions.
const (
	V7 Version = 7
	V8 Version = 8
)

func (v Version) String() string {
	return strconv.Itoa(int(v))
}

// defaultVersion is used when no version is configured and the cluster
// cannot be probed. V7 preserves legacy behavior.
const defaultVersion = V7

const probeTimeout = 5 * time.Second

// Resolver determines the active protocol version for the process.
//
// The version is resolved once and cached for the process lifetime: an
// explicit config value wins, otherwise the cluster root endpoint is probed
// a single time. Invalidate resets the cache; it exists for test isolation
// and must not be called from production code paths.
type Resolver struct {
	mu       sync.Mutex
	cfg      *Config
	log      logger.Logger
	resolved Version
	done     bool

	// probe is swappable in tests.
	probe func(ctx context.Context, cfg *Config) (Version, error)
}

// NewResolver creates a Resolver for the given connection config.
func NewResolver(cfg *Config, log logger.Logger) *Resolver {
	return &Resolver{cfg: cfg, log: log, probe: probeCluster}
}

// Resolve returns the active protocol version, querying the cluster at most
// once. Repeated calls return the cached value until Invalidate.
func (r *Resolver) Resolve(ctx context.Context) (Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.resolved, nil
	}

	switch r.cfg.Version {
	case 7:
		r.resolved = V7
	case 8:
		r.resolved = V8
	case 0:
		v, err := r.probe(ctx, r.cfg)
		if err != nil {
			// Cluster unreachable at startup: fall back rather than fail,
			// the first real operation will surface the connectivity error.
			r.log.Warn("cluster version probe failed, assuming legacy protocol",
				logger.String("assumed_version", defaultVersion.String()),
				logger.Error(err),
			)
			v = defaultVersion
		}
		r.resolved = v
	default:
		return 0, fmt.Errorf("unsupported elasticsearch version %d", r.cfg.Version)
	}

	r.done = true
	return r.resolved, nil
}

// Force pins the resolved version. Test environments only.
func (r *Resolver) Force(v Version) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = v
	r.done = true
}

// Invalidate clears the cached version so the next Resolve re-queries.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = false
	r.resolved = 0
}

// probeCluster fetches the cluster root endpoint and parses the server
// version. It deliberately uses a plain HTTP request: the version determines
// which client library to construct, so no client exists yet.
func probeCluster(ctx context.Context, cfg *Config) (Version, error) {
	url, err := probeURL(cfg)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	// The probe transport honors the same certificate policy as the client
	// that will be built from its answer.
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyCerts},
		},
	}

	res, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe cluster: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return 0, fmt.Errorf("probe cluster: status %d", res.StatusCode)
	}

	var info struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return 0, fmt.Errorf("decode cluster info: %w", err)
	}

	return parseMajorVersion(info.Version.Number)
}

// probeURL picks the endpoint to probe: an explicit URL wins, otherwise the
// address is derived from the Elastic Cloud deployment ID.
func probeURL(cfg *Config) (string, error) {
	if len(cfg.URLs) > 0 {
		return cfg.URLs[0], nil
	}
	if cfg.CloudID != "" {
		return urlFromCloudID(cfg.CloudID)
	}
	return "", fmt.Errorf("no cluster URLs configured")
}

// urlFromCloudID decodes an Elastic Cloud ID of the form
// "name:base64(host$es-uuid$kibana-uuid)" into the Elasticsearch endpoint
// https://<es-uuid>.<host>.
func urlFromCloudID(cloudID string) (string, error) {
	_, encoded, ok := strings.Cut(cloudID, ":")
	if !ok {
		return "", fmt.Errorf("malformed cloud ID %q", cloudID)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode cloud ID: %w", err)
	}

	parts := strings.Split(string(decoded), "$")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("malformed cloud ID payload")
	}

	return "https://" + parts[1] + "." + parts[0], nil
}

// parseMajorVersion maps a server version string to a protocol version.
func parseMajorVersion(number string) (Version, error) {
	major, _, _ := strings.Cut(number, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("parse server version %q: %w", number, err)
	}

	switch {
	case n >= 8:
		return V8, nil
	case n == 7:
		return V7, nil
	default:
		return 0, fmt.Errorf("unsupported server major version %d", n)
	}
}
