package agentcore

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
)

// dialDirectOrProxied opens a TCP connection to host:port, through an
// HTTP CONNECT tunnel at proxyAddr if non-nil, otherwise directly
// (spec.md §4.6 step 6a, §6 "HTTP proxy CONNECT").
func dialDirectOrProxied(ctx context.Context, host string, port int, proxyAddr *net.TCPAddr, proxyCredentials string) (net.Conn, error) {
	target := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	var d net.Dialer

	if proxyAddr == nil {
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return nil, Unreachablef(err, "dialing %s", target)
		}
		return applySocketOptions(conn), nil
	}

	conn, err := d.DialContext(ctx, "tcp", proxyAddr.String())
	if err != nil {
		return nil, Unreachablef(err, "dialing proxy %s", proxyAddr)
	}
	if err := httpConnect(conn, host, port, proxyCredentials); err != nil {
		conn.Close()
		return nil, err
	}
	return applySocketOptions(conn), nil
}

// httpConnect performs the CONNECT handshake over an already-dialed
// proxy connection (spec.md §6 "HTTP proxy CONNECT").
func httpConnect(conn net.Conn, host string, port int, proxyCredentials string) error {
	target := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\n", target)
	fmt.Fprintf(&req, "Host: %s\r\n", target)
	if proxyCredentials != "" {
		fmt.Fprintf(&req, "Proxy-Authorization: Basic %s\r\n", base64.StdEncoding.EncodeToString([]byte(proxyCredentials)))
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		return Unreachablef(err, "sending CONNECT request")
	}

	r := bufio.NewReader(conn)
	statusLine, err := ReadLine(r)
	if err != nil {
		return Unreachablef(err, "reading CONNECT status line")
	}
	fields := strings.Fields(statusLine)
	if len(fields) < 2 || fields[1] != "200" {
		return ProtocolRefusalf(nil, "CONNECT refused: %s", statusLine)
	}
	for {
		line, err := ReadLine(r)
		if err != nil {
			return Unreachablef(err, "reading CONNECT response headers")
		}
		if line == "" {
			return nil
		}
	}
}

func applySocketOptions(conn net.Conn) net.Conn {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
	}
	return conn
}
