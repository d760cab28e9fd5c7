// Package eventbus is the partitioned message log: an embedded NATS
// JetStream server plus a watermill publisher/subscriber pair, partitioned
// by aggregate id so that events for one aggregate are always delivered in
// order while events across aggregates may interleave.
package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps a NATS server with JetStream enabled, running
// in-process so the whole pipeline works without any external broker.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// EmbeddedServerConfig configures the in-process NATS server.
type EmbeddedServerConfig struct {
	Host     string
	Port     int
	StoreDir string
}

// NewEmbeddedServer starts an embedded NATS JetStream server and blocks
// until it is ready to accept connections or the timeout elapses.
func NewEmbeddedServer(cfg EmbeddedServerConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "fanout-events",
		Host:       cfg.Host,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		DontListen: false,
		MaxPayload: 4 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready within timeout")
	}

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL clients should dial to reach this server.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server, waiting for in-flight work or ctx cancellation.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.server.WaitForShutdown()
		return nil
	}
}

// IsRunning reports whether the server is currently running.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}
