package agentcore

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// listenAndDiscard starts a loopback listener that accepts and closes
// every connection, so the resolver's port-reachability probe of the
// advertised JNLP port succeeds. It returns the listener's port.
func listenAndDiscard(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestResolveParsesJNLPHeaders(t *testing.T) {
	jnlpPort := listenAndDiscard(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Jenkins-JNLP-Port", strconv.Itoa(jnlpPort))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewEndpointResolver(ResolverConfig{CandidateURLs: []string{srv.URL}})
	ep, winningURL, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if winningURL != srv.URL {
		t.Errorf("winningURL = %q, want %q", winningURL, srv.URL)
	}
	if ep.Port != jnlpPort {
		t.Errorf("Port = %d, want %d", ep.Port, jnlpPort)
	}
	if ep.SupportedProtocols != nil {
		t.Errorf("SupportedProtocols = %v, want nil (no header present)", ep.SupportedProtocols)
	}
}

func TestResolveMissingPortIsResolutionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewEndpointResolver(ResolverConfig{CandidateURLs: []string{srv.URL}})
	_, _, err := r.Resolve(context.Background())
	if !IsKind(err, KindResolution) {
		t.Fatalf("expected KindResolution, got %v", err)
	}
}

// TestResolveUsesSystemProxySelector proves SystemProxyURL/SystemNonProxyHosts
// actually reach checkPortReachable's ResolveProxy call (spec.md §4.2 step
// 1): the advertised JNLP port itself is unreachable, but with a system
// proxy configured the reachability probe dials the proxy instead and
// Resolve succeeds.
func TestResolveUsesSystemProxySelector(t *testing.T) {
	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer proxyLn.Close()
	go func() {
		for {
			conn, err := proxyLn.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Jenkins-JNLP-Port", "1") // nothing listens on port 1
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewEndpointResolver(ResolverConfig{
		CandidateURLs:  []string{srv.URL},
		SystemProxyURL: "http://" + proxyLn.Addr().String(),
	})
	if _, _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve with system proxy configured: %v", err)
	}
}

// TestResolveSystemNonProxyHostsBypassesSystemProxy proves the
// nonProxyHosts side of the same wiring: with the target host matching
// SystemNonProxyHosts, the unreachable port is dialed directly (not via
// the always-accepting proxy), so Resolve fails.
func TestResolveSystemNonProxyHostsBypassesSystemProxy(t *testing.T) {
	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer proxyLn.Close()
	go func() {
		for {
			conn, err := proxyLn.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Jenkins-JNLP-Host", "127.0.0.1")
		w.Header().Set("X-Jenkins-JNLP-Port", "1")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewEndpointResolver(ResolverConfig{
		CandidateURLs:       []string{srv.URL},
		SystemProxyURL:      "http://" + proxyLn.Addr().String(),
		SystemNonProxyHosts: "127.0.0.1",
	})
	if _, _, err := r.Resolve(context.Background()); err == nil {
		t.Fatalf("expected Resolve to fail: system proxy should be bypassed for a nonProxyHosts match")
	}
}

func TestResolvePreferredURLTriedFirst(t *testing.T) {
	var hits []string
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits = append(hits, "bad")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	jnlpPort := listenAndDiscard(t)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits = append(hits, "good")
		w.Header().Set("X-Jenkins-JNLP-Port", strconv.Itoa(jnlpPort))
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	r := NewEndpointResolver(ResolverConfig{CandidateURLs: []string{bad.URL, good.URL}})
	if _, _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	hits = nil
	if _, winningURL, err := r.Resolve(context.Background()); err != nil || winningURL != good.URL {
		t.Fatalf("second Resolve: url=%q err=%v", winningURL, err)
	}
	if len(hits) != 1 || hits[0] != "good" {
		t.Errorf("expected only the preferred (good) URL to be probed on repeat resolve, got %v", hits)
	}
}

func TestWaitForReady404ThenSuccess(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewEndpointResolver(ResolverConfig{CandidateURLs: []string{srv.URL}})
	err := r.WaitForReady(context.Background(), srv.URL, 10*time.Second)
	if err != nil {
		t.Fatalf("WaitForReady: %v", err)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 calls (one 404, one 200), got %d", calls)
	}
}

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.0.0", "2.0.0", true},
		{"2.0.0", "1.0.0", false},
		{"1.2", "1.2.1", true},
		{"1.2.1", "1.2", false},
		{"1.2.3", "1.2.3", false},
	}
	for _, c := range cases {
		if got := versionLess(c.a, c.b); got != c.want {
			t.Errorf("versionLess(%q,%q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
