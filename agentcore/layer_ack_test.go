package agentcore

import (
	"context"
	"io"
	"net"
	"testing"
)

func TestACKLayerMatches(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var events []StackEventKind
	errCh := make(chan error, 1)
	go func() {
		_, err := ACKLayer{}.Negotiate(context.Background(), server, func(e StackEvent) { events = append(events, e.Kind) })
		errCh <- err
	}()

	if _, err := (ACKLayer{}).Negotiate(context.Background(), client, nil); err != nil {
		t.Fatalf("client ACK: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server ACK: %v", err)
	}
}

func TestACKLayerMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go server.Write([]byte{0, 0, 0, 0, 0})
	go io.Copy(io.Discard, server)

	_, err := ACKLayer{}.Negotiate(context.Background(), client, nil)
	if !IsKind(err, KindProtocolRefusal) {
		t.Errorf("expected KindProtocolRefusal, got %v", err)
	}
}
