package agentcore

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/jpillora/sizestr"

	"github.com/agentwire/remotecore/channel"
)

// byteCounter is implemented by channel.Conn values that track bytes
// transferred (channel.BasicConn does); used only for the human-readable
// close-summary log line.
type byteCounter interface {
	NumBytesRead() int64
	NumBytesWritten() int64
}

// Connector orchestrates one agent-side connection attempt end to end:
// resolve → open socket (direct or via HTTP CONNECT) → negotiate →
// run handshake → emit a channel (spec.md §2 "Inbound TCP connector").
// A Connector is single-shot: Connect produces at most one channel,
// matching the explicit non-goal of live reconfiguration (spec.md §1).
type Connector struct {
	cfg      *Config
	log      Logger
	resolver *EndpointResolver
	hub      *Hub
	builder  channel.Builder
	stats    ConnStats

	mu         sync.Mutex
	closed     bool
	closeables []io.Closer
	cookie     string
	channel    channel.Conn
}

// NewConnector builds a Connector from cfg and the channel builder the
// successful protocol hands off to (an external collaborator, §6).
func NewConnector(cfg *Config, builder channel.Builder) *Connector {
	cfg = cfg.withDefaults()
	resolverCfg := ResolverConfig{
		CandidateURLs:       cfg.CandidateURLs,
		Credentials:         cfg.Credentials,
		ProxyCredentials:    cfg.ProxyCredentials,
		Tunnel:              cfg.Tunnel,
		ClientName:          cfg.ClientName,
		TLSConfig:           cfg.TLSConfig,
		ProtocolOverride:    cfg.ProtocolOverride,
		Logger:              cfg.Logger,
		SystemProxyURL:      cfg.SystemProxyURL,
		SystemNonProxyHosts: cfg.SystemNonProxyHosts,
	}
	return &Connector{
		cfg:      cfg,
		log:      cfg.Logger,
		resolver: NewEndpointResolver(resolverCfg),
		hub:      NewHub(),
		builder:  builder,
	}
}

// AddCloseable registers c to be closed when the connector is closed
// (spec.md §5 "Cancellation" — close() closes every registered
// closeable, cascading into read failures).
func (c *Connector) AddCloseable(cl io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeables = append(c.closeables, cl)
}

// Close tears down the hub and every registered closeable.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closeables := c.closeables
	ch := c.channel
	c.mu.Unlock()

	if ch != nil {
		c.stats.Close()
		if bc, ok := ch.(byteCounter); ok {
			c.log.ILogf("%s: Close (sent %s received %s)", &c.stats, sizestr.ToString(bc.NumBytesWritten()), sizestr.ToString(bc.NumBytesRead()))
		} else {
			c.log.ILogf("%s: Close", &c.stats)
		}
	}

	for _, cl := range closeables {
		cl.Close()
	}
	return c.hub.Close()
}

// Connect runs one full connection attempt: resolve the endpoint via
// the retry harness, then try each enabled protocol in preference order
// until one succeeds (spec.md §4.6 steps 1-7).
func (c *Connector) Connect(ctx context.Context) (channel.Conn, error) {
	endpoint, _, err := Retry(ctx, func(ctx context.Context) (*Endpoint, error) {
		ep, _, err := c.resolver.Resolve(ctx)
		return ep, err
	}, c.cfg.ResolveDeadline, func(err error) {
		c.log.WLogf("%s", RetryMessage("resolving endpoint", err))
	}, c.cfg.RetryOptions)
	if err != nil {
		return nil, err
	}

	handlers := EnabledHandlers(endpoint, c.cfg.disabledSet(), c.cfg.ProtocolOverride)

	c.stats.New()

	var lastErr error
	anyEnabled := false
	for _, h := range handlers {
		if !h.Enabled {
			continue
		}
		anyEnabled = true

		ch, err := c.tryProtocol(ctx, endpoint, h.Name)
		if err == nil {
			c.mu.Lock()
			c.channel = ch
			c.mu.Unlock()
			c.stats.Open()
			c.log.ILogf("%s: Open (%s:%d via %s)", &c.stats, endpoint.Host, endpoint.Port, h.Name)
			return ch, nil
		}
		c.log.ILogf("protocol %s refused: %v", h.Name, err)
		if lastErr == nil {
			lastErr = err
		} else if ce, ok := lastErr.(*ConnError); ok {
			ce.Suppress(err)
		}
	}

	if !anyEnabled {
		return nil, ProtocolRefusalf(nil, "reconnect rejected: none enabled")
	}
	if lastErr == nil {
		lastErr = ProtocolRefusalf(nil, "reconnect rejected: none accepted")
	}
	return nil, lastErr
}

// tryProtocol opens a fresh socket and runs the named protocol against
// it, returning its channel on success. The socket is closed on any
// failure path so the caller can cleanly try the next protocol
// (spec.md §4.6 step 6d).
func (c *Connector) tryProtocol(ctx context.Context, endpoint *Endpoint, protocolName string) (channel.Conn, error) {
	proxyAddr, err := ResolveProxy(endpoint.Host, endpoint.Port, c.cfg.SystemProxyURL, c.cfg.SystemNonProxyHosts, c.log)
	if err != nil {
		proxyAddr = nil
	}

	conn, err := dialDirectOrProxied(ctx, endpoint.Host, endpoint.Port, proxyAddr, c.cfg.ProxyCredentials)
	if err != nil {
		return nil, err
	}
	c.AddCloseable(conn)

	var ch channel.Conn
	switch protocolName {
	case ProtocolV1, ProtocolV2, ProtocolV3:
		ch, err = c.runLegacyHandshake(conn, endpoint, protocolName)
	case ProtocolV4, ProtocolV4Plaintext, ProtocolV4Proxy:
		ch, err = c.runV4(ctx, conn, endpoint, protocolName)
	default:
		err = Internalf("unknown protocol %q", protocolName)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ch, nil
}

// runLegacyHandshake drives a blocking v1/v2/v3 handshake to
// completion and wires its result into a ConnState/listener chain so
// the identity-verifier and channel builder run through the same state
// machine v4 uses (spec.md §4.5, §4.6).
func (c *Connector) runLegacyHandshake(conn net.Conn, endpoint *Endpoint, protocolName string) (channel.Conn, error) {
	req := HandshakeRequest{Secret: c.cfg.Secret, ClientName: c.cfg.ClientName, Cookie: c.cookie}

	var result *HandshakeResult
	var err error
	switch protocolName {
	case ProtocolV1:
		result, err = HandshakeV1(conn, req)
	case ProtocolV2:
		result, err = HandshakeV2(conn, req)
	case ProtocolV3:
		result, err = HandshakeV3(conn, req)
	}
	if err != nil {
		return nil, err
	}

	listener := &IdentityVerifierListener{Expected: endpoint.InstancePublicKey, Log: c.log}
	state := NewConnState(conn, conn.RemoteAddr().String(), []Listener{listener})

	if err := state.FireBeforeProperties(); err != nil {
		return nil, err
	}
	if err := state.FireAfterProperties(result.Properties); err != nil {
		return nil, err
	}
	if state.Lifecycle() == Rejected {
		return nil, ProtocolRefusalf(nil, "%s", state.Rejection())
	}

	if err := state.FireBeforeChannel(c.builder); err != nil {
		return nil, err
	}
	ch, err := c.builder.Build(context.Background(), conn)
	if err != nil {
		return nil, Unreachablef(err, "building channel")
	}
	if err := state.FireAfterChannel(ch); err != nil {
		return nil, err
	}

	if result.NewCookie != "" {
		c.cookie = result.NewCookie
	} else if listener.LastCookie != "" {
		c.cookie = listener.LastCookie
	}
	return ch, nil
}

// runV4 builds and negotiates the v4 layered stack (spec.md §4.8).
func (c *Connector) runV4(ctx context.Context, conn net.Conn, endpoint *Endpoint, protocolName string) (channel.Conn, error) {
	layers := []Layer{NetworkLayer{}, ACKLayer{}}

	if protocolName != ProtocolV4Plaintext {
		tlsCfg := c.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = ClientTLSConfig(endpoint.Host)
		}
		layers = append(layers, TLSLayer{Config: tlsCfg, IsServer: false})
	}

	headers := map[string]string{"Client-Name": c.cfg.ClientName, "Secret": c.cfg.Secret}
	if c.cookie != "" {
		headers["Cookie"] = c.cookie
	}
	layers = append(layers, HeadersLayer{Local: headers})

	if err := WriteProtocolMarker(conn, protocolName); err != nil {
		return nil, Unreachablef(err, "writing protocol marker")
	}

	stack := NewProtocolStack(c.builder, layers...)
	c.hub.Register(stack)
	defer c.hub.Unregister(stack)

	listener := &IdentityVerifierListener{Expected: endpoint.InstancePublicKey, Log: c.log}
	state := NewConnState(conn, conn.RemoteAddr().String(), []Listener{listener})

	var peerHeaders map[string]string
	ch, err := stack.NegotiateChannel(ctx, conn, func(e StackEvent) {
		switch e.Kind {
		case EventHandshakeCompleted:
			listener.PeerCertState = e.TLSState
			if err := state.FireBeforeProperties(); err != nil {
				c.log.ELogf("%v", err)
			}
		case EventHeadersReceived:
			peerHeaders = e.Headers
			if err := state.FireAfterProperties(e.Headers); err != nil {
				c.log.ELogf("%v", err)
			}
		}
	}, func() error {
		// No TLS layer (v4 plaintext): BEFORE_PROPERTIES/AFTER_PROPERTIES
		// never ran from a TLS event, so drive them here instead.
		if listener.PeerCertState == nil {
			if state.Lifecycle() == Initialized {
				if err := state.FireBeforeProperties(); err != nil {
					return err
				}
			}
			if state.Lifecycle() == BeforeProperties {
				if err := state.FireAfterProperties(peerHeaders); err != nil {
					return err
				}
			}
		}
		if state.Lifecycle() == Rejected {
			return ProtocolRefusalf(nil, "%s", state.Rejection())
		}
		return state.FireBeforeChannel(c.builder)
	})
	if err != nil {
		return nil, err
	}

	if err := state.FireAfterChannel(ch); err != nil {
		return nil, err
	}

	if cookie, ok := peerHeaders["Cookie"]; ok {
		c.cookie = cookie
	}
	return ch, nil
}
