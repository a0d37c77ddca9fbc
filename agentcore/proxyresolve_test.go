package agentcore

import "testing"

func TestMatchesNonProxyHostsWildcards(t *testing.T) {
	log := NewLogger("test", LogLevelInfo)
	cases := []struct {
		host    string
		entries string
		want    bool
	}{
		{"foo.mit.edu", "*.mit.edu", true},
		{"mit.edu", "mit.edu*", true},
		{"example.com", "*.mit.edu", false},
		{"mit.edu", "", false},
		{"a.b.c", "*.b.*", false}, // multiple wildcards: unsupported, ignored
	}
	for _, c := range cases {
		if got := matchesNonProxyHosts(c.host, c.entries, log); got != c.want {
			t.Errorf("matchesNonProxyHosts(%q, %q) = %v, want %v", c.host, c.entries, got, c.want)
		}
	}
}

func TestShouldProxyNoProxyWalk(t *testing.T) {
	cases := []struct {
		host    string
		noProxy string
		want    bool
	}{
		{"foo.mit.edu", "mit.edu", false},
		{"foo.mit.edu", ".mit.edu", false},
		{"bar.baz.mit.edu", "mit.edu", false},
		{"example.com", "mit.edu", true},
		{"10.0.0.1", "10.0.0.1", false},
		{"10.0.0.2", "10.0.0.1", true},
		{"anything", "", true},
	}
	for _, c := range cases {
		if got := ShouldProxy(c.host, c.noProxy); got != c.want {
			t.Errorf("ShouldProxy(%q, %q) = %v, want %v", c.host, c.noProxy, got, c.want)
		}
	}
}

func TestShouldProxyIdempotentNormalization(t *testing.T) {
	host := "foo.mit.edu"
	n1 := "mit.edu"
	n2 := normalizeNoProxyEntry(".mit.edu")
	if ShouldProxy(host, n1) != ShouldProxy(host, n2) {
		t.Errorf("should_proxy not idempotent under leading-dot normalization")
	}
	if normalizeNoProxyEntry(n2) != n2 {
		t.Errorf("normalizeNoProxyEntry not a fixed point after one application")
	}
}
