// Command h2gated runs the HTTP/2 upstream adapter standalone, dialing
// origins over plain HTTP/1.1 via the default internal/origin connector.
// It is not a general-purpose reverse-proxy CLI (routing, TLS termination
// and config-file loading are out of scope); it exists to make the
// adapter runnable end-to-end.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relayforge/h2gate/config"
	"github.com/relayforge/h2gate/internal/date"
	"github.com/relayforge/h2gate/internal/origin"
	"github.com/relayforge/h2gate/internal/upstream"
)

func main() {
	stopDate := date.StartTicker()
	defer stopDate()

	cfg := config.DefaultConfig()
	cfg.Logger = log.New(os.Stdout, "h2gated: ", log.LstdFlags)

	if addr := os.Getenv("H2GATED_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if os.Getenv("H2GATED_FRAME_DEBUG") == "1" {
		cfg.UpstreamFrameDebug = true
	}

	dialer := origin.NewDialer(cfg.Logger)
	if backend := os.Getenv("H2GATED_ORIGIN_ADDR"); backend != "" {
		dialer.AuthorityToAddr = func(scheme, authority string) string {
			return backend
		}
	}

	srv := upstream.NewServer(cfg, dialer)

	go func() {
		if err := srv.Run(); err != nil {
			cfg.Logger.Fatalf("server exited: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cfg.Logger.Println("shutting down")
}
