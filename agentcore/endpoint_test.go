package agentcore

import "testing"

func TestEndpointEqualNATLoopback(t *testing.T) {
	cases := []struct {
		h1, h2 string
		port1  int
		port2  int
		want   bool
	}{
		{"0.0.0.0", "127.0.0.1", 50000, 50000, true},
		{"::", "::1", 50000, 50000, true},
		{"0.0.0.0", "127.0.0.1", 50000, 50001, false},
		{"192.168.1.1", "127.0.0.1", 50000, 50000, false},
		{"example.com", "example.com", 50000, 50000, true},
		{"example.com", "other.com", 50000, 50000, false},
	}
	for _, c := range cases {
		e1 := Endpoint{Host: c.h1, Port: c.port1}
		e2 := Endpoint{Host: c.h2, Port: c.port2}
		if got := e1.Equal(e2); got != c.want {
			t.Errorf("Endpoint{%s:%d}.Equal({%s:%d}) = %v, want %v", c.h1, c.port1, c.h2, c.port2, got, c.want)
		}
	}
}

func TestEndpointSupportsProtocol(t *testing.T) {
	all := Endpoint{}
	if !all.SupportsProtocol(ProtocolV1) {
		t.Errorf("nil SupportedProtocols should support everything")
	}
	restricted := Endpoint{SupportedProtocols: []string{ProtocolV2, ProtocolV4}}
	if !restricted.SupportsProtocol(ProtocolV2) {
		t.Errorf("expected v2 supported")
	}
	if restricted.SupportsProtocol(ProtocolV1) {
		t.Errorf("expected v1 unsupported")
	}
}
