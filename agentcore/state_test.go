package agentcore

import (
	"bytes"
	"testing"
)

type nopSocket struct{ bytes.Buffer }

func (n *nopSocket) Close() error { return nil }

type recordingListener struct {
	BaseListener
	name   string
	calls  *[]string
	onAP   func(ev *Event)
}

func (l *recordingListener) OnBeforeProperties(ev *Event) {
	*l.calls = append(*l.calls, l.name+":before_properties")
}

func (l *recordingListener) OnAfterProperties(ev *Event) {
	*l.calls = append(*l.calls, l.name+":after_properties")
	if l.onAP != nil {
		l.onAP(ev)
	}
}

func (l *recordingListener) OnBeforeChannel(ev *Event) {
	*l.calls = append(*l.calls, l.name+":before_channel")
}

func (l *recordingListener) OnAfterChannel(ev *Event) {
	*l.calls = append(*l.calls, l.name+":after_channel")
}

func TestStateMachineMonotonicity(t *testing.T) {
	var calls []string
	l := &recordingListener{name: "L0", calls: &calls, onAP: func(ev *Event) { ev.Approve() }}
	s := NewConnState(&nopSocket{}, "test-remote", []Listener{l})

	seen := []Lifecycle{s.Lifecycle()}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(s.FireBeforeProperties())
	seen = append(seen, s.Lifecycle())
	must(s.FireAfterProperties(map[string]string{"k": "v"}))
	seen = append(seen, s.Lifecycle())
	must(s.FireBeforeChannel(nil))
	seen = append(seen, s.Lifecycle())
	must(s.FireAfterChannel(nil))
	seen = append(seen, s.Lifecycle())
	must(s.FireDisconnected())
	seen = append(seen, s.Lifecycle())

	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] && seen[i] != Disconnected {
			t.Errorf("lifecycle went backwards: %v", seen)
		}
	}
	if seen[len(seen)-1] != Disconnected {
		t.Errorf("expected terminal Disconnected, got %v", seen)
	}
}

func TestOwnershipAtomicity(t *testing.T) {
	var calls []string
	l0 := &recordingListener{name: "L0", calls: &calls, onAP: func(ev *Event) { ev.Approve() }}
	l1 := &recordingListener{name: "L1", calls: &calls}
	s := NewConnState(&nopSocket{}, "test-remote", []Listener{l0, l1})

	if err := s.FireBeforeProperties(); err != nil {
		t.Fatalf("FireBeforeProperties: %v", err)
	}
	if err := s.FireAfterProperties(nil); err != nil {
		t.Fatalf("FireAfterProperties: %v", err)
	}
	if err := s.FireBeforeChannel(nil); err != nil {
		t.Fatalf("FireBeforeChannel: %v", err)
	}

	for _, c := range calls {
		if len(c) >= 2 && c[:2] == "L1" && c != "L1:before_properties" && c != "L1:after_properties" {
			t.Errorf("L1 callback ran after L0 claimed ownership: %v", calls)
		}
	}

	afterClaimCount := 0
	for _, c := range calls {
		if c == "L1:before_channel" {
			afterClaimCount++
		}
	}
	if afterClaimCount != 0 {
		t.Errorf("L1 received BEFORE_CHANNEL after L0 claimed ownership in AFTER_PROPERTIES")
	}
}

func TestNoListenerClaimsRejectsAttempt(t *testing.T) {
	l := &recordingListener{name: "L0", calls: &[]string{}}
	s := NewConnState(&nopSocket{}, "test-remote", []Listener{l})
	if err := s.FireBeforeProperties(); err != nil {
		t.Fatalf("FireBeforeProperties: %v", err)
	}
	if err := s.FireAfterProperties(nil); err != nil {
		t.Fatalf("FireAfterProperties: %v", err)
	}
	if s.Lifecycle() != Rejected {
		t.Errorf("expected Rejected when no listener claims ownership, got %v", s.Lifecycle())
	}
	if s.Rejection() != "no listeners interested in connection" {
		t.Errorf("unexpected rejection reason: %q", s.Rejection())
	}
}

func TestPropertiesNotReadableBeforeAfterProperties(t *testing.T) {
	s := NewConnState(&nopSocket{}, "test-remote", nil)
	if _, err := s.Properties(); err == nil {
		t.Errorf("expected error reading properties before AFTER_PROPERTIES")
	}
}

func TestIllegalTransitionIsInternalError(t *testing.T) {
	s := NewConnState(&nopSocket{}, "test-remote", nil)
	err := s.FireAfterProperties(nil)
	if !IsKind(err, KindInternal) {
		t.Errorf("expected KindInternal for out-of-order fire*, got %v", err)
	}
}
