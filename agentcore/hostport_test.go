package agentcore

import "testing"

func TestParseHostPortBasic(t *testing.T) {
	cases := []struct {
		in          string
		defaultHost string
		defaultPort int
		wantHost    string
		wantPort    int
		wantErr     bool
	}{
		{"example.com:50000", "", 0, "example.com", 50000, false},
		{"[::1]:50000", "", 0, "::1", 50000, false},
		{"[::1]", "", 80, "::1", 80, false},
		{":50000", "host", 0, "host", 50000, false},
		{"example.com:", "", 443, "example.com", 443, false},
		{"", "host", 80, "", 0, true},
		{"noColon", "host", 80, "", 0, true},
		{"[unterminated:50000", "", 0, "", 0, true},
		{"host:notanumber", "", 0, "", 0, true},
		{"host:70000", "", 0, "", 0, true},
		{"host:-1", "", 0, "", 0, true},
	}

	for _, c := range cases {
		got, err := ParseHostPort(c.in, c.defaultHost, c.defaultPort)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseHostPort(%q) = %v, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHostPort(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got.Host != c.wantHost || got.Port != c.wantPort {
			t.Errorf("ParseHostPort(%q) = %+v, want {%s %d}", c.in, got, c.wantHost, c.wantPort)
		}
	}
}

func TestParseHostPortPortRangeBoundaries(t *testing.T) {
	if _, err := ParseHostPort("host:0", "", 0); err != nil {
		t.Errorf("port 0 should be valid: %v", err)
	}
	if _, err := ParseHostPort("host:65535", "", 0); err != nil {
		t.Errorf("port 65535 should be valid: %v", err)
	}
	if _, err := ParseHostPort("host:65536", "", 0); err == nil {
		t.Errorf("port 65536 should be invalid")
	}
}

func TestHostPortStringBracketsIPv6(t *testing.T) {
	hp := HostPort{Host: "::1", Port: 50000}
	if got, want := hp.String(), "[::1]:50000"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	hp2 := HostPort{Host: "example.com", Port: 50000}
	if got, want := hp2.String(), "example.com:50000"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
