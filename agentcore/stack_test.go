package agentcore

import (
	"context"
	"net"
	"testing"

	"github.com/agentwire/remotecore/channel"
)

// TestProtocolStackPlaintextRoundTrip exercises the v4-plaintext stack
// shape (network -> ACK -> headers -> channel, TLS layer omitted, per
// spec.md §4.7 "v4 plaintext... same framed stack as v4 with the TLS
// layer omitted").
func TestProtocolStackPlaintextRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientStack := NewProtocolStack(&channel.LoopbackBuilder{},
		NetworkLayer{},
		ACKLayer{},
		HeadersLayer{Local: map[string]string{"Cookie": "abc"}},
	)
	serverStack := NewProtocolStack(&channel.LoopbackBuilder{},
		NetworkLayer{},
		ACKLayer{},
		HeadersLayer{Local: map[string]string{}},
	)

	var clientEvents, serverEvents []StackEventKind
	type result struct {
		conn channel.Conn
		err  error
	}
	serverCh := make(chan result, 1)
	go func() {
		conn, err := serverStack.Negotiate(context.Background(), server, func(e StackEvent) { serverEvents = append(serverEvents, e.Kind) })
		serverCh <- result{conn, err}
	}()

	clientConn, err := clientStack.Negotiate(context.Background(), client, func(e StackEvent) { clientEvents = append(clientEvents, e.Kind) })
	if err != nil {
		t.Fatalf("client stack: %v", err)
	}
	res := <-serverCh
	if res.err != nil {
		t.Fatalf("server stack: %v", res.err)
	}

	wantEvents := []StackEventKind{EventACKComplete, EventHeadersReceived, EventChannelOpen}
	if len(clientEvents) != len(wantEvents) {
		t.Fatalf("expected %d events, got %v", len(wantEvents), clientEvents)
	}
	for i, k := range wantEvents {
		if clientEvents[i] != k {
			t.Errorf("event %d: got %v, want %v", i, clientEvents[i], k)
		}
	}

	if clientConn == nil || res.conn == nil {
		t.Fatalf("expected non-nil channel.Conn from both sides")
	}
}
