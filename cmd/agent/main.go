package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentwire/remotecore/agentcore"
	"github.com/agentwire/remotecore/channel"
)

var help = `
  Usage: agent [--help] <controller-url> [<controller-url>...]

  Version: ` + agentcore.BuildVersion + `

  Connects to a controller, negotiates a protocol, and bridges the
  resulting channel to stdio.
`

func sigIntHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	select {
	case <-sig:
		log.Printf("SIGINT received; cancelling main ctx")
	case <-ctx.Done():
	}
	signal.Stop(sig)
	cancel()
}

func main() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	secret := flag.String("secret", "", "shared secret")
	name := flag.String("name", "", "agent client name")
	proxyCreds := flag.String("proxy-credentials", "", "user:pass for an HTTP CONNECT proxy")
	systemProxyURL := flag.String("system-proxy-url", "", "proxy URL consulted before the http_proxy/no_proxy environment")
	systemNonProxyHosts := flag.String("system-non-proxy-hosts", "", "'|'-separated http.nonProxyHosts wildcard list bypassing -system-proxy-url")
	tunnel := flag.String("tunnel", "", "explicit host:port override")
	disabled := flag.String("disable", "", "comma-separated protocol names to refuse")
	verbose := flag.Bool("v", false, "")
	version := flag.Bool("version", false, "")
	flag.Usage = func() {
		fmt.Print(help)
		os.Exit(1)
	}
	flag.Parse()

	if *version {
		fmt.Println(agentcore.BuildVersion)
		return
	}

	urls := flag.Args()
	if len(urls) == 0 {
		flag.Usage()
	}
	if *secret == "" {
		*secret = os.Getenv("AGENT_SECRET")
	}

	logLevel := agentcore.LogLevelInfo
	if *verbose {
		logLevel = agentcore.LogLevelDebug
	}

	cfg := &agentcore.Config{
		CandidateURLs:       urls,
		Secret:              *secret,
		ClientName:          *name,
		ProxyCredentials:    *proxyCreds,
		SystemProxyURL:      *systemProxyURL,
		SystemNonProxyHosts: *systemNonProxyHosts,
		Tunnel:              *tunnel,
		DisabledProtocols:   splitNonEmpty(*disabled),
		ResolveDeadline:     10 * time.Minute,
		Logger:              agentcore.NewLogger("agent", logLevel),
	}

	connector := agentcore.NewConnector(cfg, channel.StdioBuilder{})
	go sigIntHandler(ctx, ctxCancel)

	ch, err := connector.Connect(ctx)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer connector.Close()

	<-ctx.Done()
	ch.Close()
	log.Printf("agent exiting")
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
