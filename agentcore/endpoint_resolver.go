package agentcore

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
)

const (
	resolveConnectTimeout = 30 * time.Second
	resolveReadTimeout    = 60 * time.Second
	readyConnectTimeout   = 5 * time.Second
	readyReadTimeout      = 5 * time.Second
	portProbeTimeout      = 5 * time.Second
)

// ResolverConfig configures one EndpointResolver (spec.md §4.3 inputs).
type ResolverConfig struct {
	CandidateURLs    []string
	Credentials      string // "user:pass" -> Authorization: Basic
	ProxyCredentials string // "user:pass" -> Proxy-Authorization: Basic
	Tunnel           string // host:port override, empty sides keep defaults
	TLSConfig        *tls.Config
	ProtocolOverride []string // env/config override of the advertised protocol set
	ClientName       string
	Logger           Logger

	// SystemProxyURL and SystemNonProxyHosts thread spec.md §4.2 step 1's
	// system proxy selector into the port-reachability probe's own
	// ResolveProxy call (see Config's fields of the same name).
	SystemProxyURL      string
	SystemNonProxyHosts string
}

// EndpointResolver implements spec.md §4.3: probing candidate controller
// URLs, parsing advertised service metadata, and remembering which
// candidate last succeeded so subsequent attempts try it first.
type EndpointResolver struct {
	cfg          ResolverConfig
	log          Logger
	preferredURL string
}

// NewEndpointResolver builds a resolver from cfg.
func NewEndpointResolver(cfg ResolverConfig) *EndpointResolver {
	log := cfg.Logger
	if log == nil {
		log = NewLogger("resolver", LogLevelInfo)
	}
	return &EndpointResolver{cfg: cfg, log: log}
}

func (r *EndpointResolver) orderedCandidates() []string {
	if r.preferredURL == "" {
		return r.cfg.CandidateURLs
	}
	ordered := make([]string, 0, len(r.cfg.CandidateURLs))
	ordered = append(ordered, r.preferredURL)
	for _, u := range r.cfg.CandidateURLs {
		if u != r.preferredURL {
			ordered = append(ordered, u)
		}
	}
	return ordered
}

// Resolve probes each candidate URL in preference order and returns the
// first Endpoint record that parses successfully (spec.md §4.3). Failures
// are chained (root cause + suppressed tail, per §7 propagation policy).
func (r *EndpointResolver) Resolve(ctx context.Context) (*Endpoint, string, error) {
	urls := r.orderedCandidates()
	if len(urls) == 0 {
		return nil, "", ResolutionErrorf(nil, "no candidate URLs configured")
	}

	var chain *ConnError
	for _, u := range urls {
		ep, err := r.probeOne(ctx, u)
		if err == nil {
			r.preferredURL = u
			r.log.ILogf("Agent discovery successful for %s", u)
			return ep, u, nil
		}
		r.log.DLogf("candidate %s failed: %v", u, err)
		if chain == nil {
			chain = ResolutionErrorf(err, "resolving endpoint via %s", u)
		} else {
			chain.Suppress(err)
		}
	}
	return nil, "", chain
}

func (r *EndpointResolver) probeOne(ctx context.Context, rawURL string) (*Endpoint, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, Unreachablef(err, "parsing candidate URL %q", rawURL)
	}

	reqCtx, cancel := context.WithTimeout(ctx, resolveConnectTimeout+resolveReadTimeout)
	defer cancel()

	client := r.httpClient(resolveConnectTimeout, resolveReadTimeout)
	resp, err := r.doProbeRequest(reqCtx, client, base)
	if err != nil {
		return nil, Unreachablef(err, "probing %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, Unreachablef(nil, "probe of %s returned status %d", rawURL, resp.StatusCode)
	}

	ep, err := r.parseHeaders(base, resp.Header)
	if err != nil {
		return nil, err
	}

	if r.cfg.Tunnel != "" {
		hp, err := ParseHostPort(r.cfg.Tunnel, ep.Host, ep.Port)
		if err != nil {
			return nil, err
		}
		ep.Host = hp.Host
		ep.Port = hp.Port
	} else if err := r.checkPortReachable(ctx, ep.Host, ep.Port); err != nil {
		return nil, err
	}

	ep.ServiceURL = base
	ep.ProxyCredentials = r.cfg.ProxyCredentials
	return ep, nil
}

func (r *EndpointResolver) doProbeRequest(ctx context.Context, client *http.Client, base *url.URL) (*http.Response, error) {
	probeURL := strings.TrimRight(base.String(), "/") + "/tcpSlaveAgentListener/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return nil, err
	}
	if r.cfg.Credentials != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(r.cfg.Credentials)))
	}
	if r.cfg.ProxyCredentials != "" {
		req.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(r.cfg.ProxyCredentials)))
	}
	if r.cfg.ClientName != "" {
		req.Header.Set("X-Agent-Name", r.cfg.ClientName)
	}
	return client.Do(req)
}

func (r *EndpointResolver) httpClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       r.cfg.TLSConfig,
		ResponseHeaderTimeout: readTimeout,
	}
	return &http.Client{Transport: transport}
}

// headerFirst returns the first non-empty value among candidate header
// names, matching spec.md §4.3's "prefer X-Jenkins-* then X-Hudson-*".
func headerFirst(h http.Header, names ...string) string {
	for _, n := range names {
		if v := h.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func (r *EndpointResolver) parseHeaders(base *url.URL, h http.Header) (*Endpoint, error) {
	portStr := headerFirst(h, "X-Jenkins-JNLP-Port", "X-Hudson-JNLP-Port")
	if portStr == "" {
		return nil, ResolutionErrorf(nil, "response from %s carries no JNLP port header", base)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, ResolutionErrorf(err, "invalid JNLP port %q from %s", portStr, base)
	}

	host := headerFirst(h, "X-Jenkins-JNLP-Host", "X-Hudson-JNLP-Host")
	if host == "" {
		host = base.Hostname()
	}

	var protocols []string
	if r.cfg.ProtocolOverride != nil {
		protocols = r.cfg.ProtocolOverride
	} else if csv := headerFirst(h, "X-Jenkins-Agent-Protocols"); csv != "" {
		for _, p := range strings.Split(csv, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				protocols = append(protocols, p)
			}
		}
	}

	var pubKey *rsa.PublicKey
	if id := headerFirst(h, "X-Instance-Identity"); id != "" {
		pubKey, err = parseInstanceIdentity(id)
		if err != nil {
			return nil, ResolutionErrorf(err, "parsing X-Instance-Identity from %s", base)
		}
	}

	if minVersion := headerFirst(h, "Remoting-Minimum-Version"); minVersion != "" {
		if versionLess(BuildVersion, minVersion) {
			return nil, ResolutionErrorf(nil, "controller at %s requires remoting >= %s, this agent is %s", base, minVersion, BuildVersion)
		}
	}

	return &Endpoint{
		Host:               host,
		Port:               port,
		InstancePublicKey:  pubKey,
		SupportedProtocols: protocols,
	}, nil
}

func parseInstanceIdentity(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing X.509 public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("instance identity key is not RSA")
	}
	return rsaPub, nil
}

// versionLess reports whether a is an older dotted-numeric version than b.
// Missing trailing components compare as 0.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}

func (r *EndpointResolver) checkPortReachable(ctx context.Context, host string, port int) error {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	dialHost := target

	if proxyAddr, err := ResolveProxy(host, port, r.cfg.SystemProxyURL, r.cfg.SystemNonProxyHosts, r.log); err == nil && proxyAddr != nil {
		dialHost = proxyAddr.String()
	}

	dialCtx, cancel := context.WithTimeout(ctx, portProbeTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", dialHost)
	if err != nil {
		return Unreachablef(err, "port not reachable: %s", target)
	}
	conn.Close()
	return nil
}

// waitNow/waitSleep are indirection points so tests can drive WaitForReady
// without a real clock, mirroring retryNow/retrySleep.
var waitNow = time.Now

var waitSleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForReady loops GETting <url>/tcpSlaveAgentListener/ with exponential
// backoff until it returns 200, the deadline elapses, or ctx is cancelled
// (spec.md §4.3 "wait-for-ready").
func (r *EndpointResolver) WaitForReady(ctx context.Context, rawURL string, deadline time.Duration) error {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
	start := waitNow()
	client := r.httpClient(readyConnectTimeout, readyReadTimeout)
	probeURL := strings.TrimRight(rawURL, "/") + "/tcpSlaveAgentListener/"

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
		if err == nil {
			resp, reqErr := client.Do(req)
			if reqErr == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
				if resp.StatusCode == http.StatusNotFound {
					r.log.WLogf("Controller isn't ready to talk to us on %s. Maybe TCP port for inbound agents is disabled?", rawURL)
				}
			}
		}

		if waitNow().Sub(start) >= deadline {
			return Cancelledf(nil, "wait-for-ready deadline exceeded for %s", rawURL)
		}
		if serr := waitSleep(ctx, b.Duration()); serr != nil {
			return Cancelledf(serr, "wait-for-ready cancelled")
		}
	}
}
