// Package tws provides an embeddable HTTP/1.x server with an optional worker
// pool for handlers that should not run on the event loop.
package tws

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/FumingPower3925/tws/internal/h1"
)

// Config holds the server configuration options.
type Config struct {
	Addr           string      // Server address to bind to
	Workers        int         // Pool workers for StatusSwitchThread (0 disables the pool)
	KeepAlive      bool        // Reuse connections for sequential requests
	ServerName     string      // Default Server header
	Compression    bool        // Offer deflate and br when the client accepts them
	Multicore      bool        // Run one event loop per CPU
	NumEventLoop   int         // Number of event loops (0 for auto-detect)
	ReusePort      bool        // Enable SO_REUSEPORT
	MaxConnections uint32      // Maximum concurrent connections (0 for unlimited)
	Logger         *zap.Logger // Logger for server events
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:       ":8000",
		Workers:    4,
		KeepAlive:  true,
		ServerName: h1.DefaultServerName,
		Multicore:  true,
		Logger:     zap.NewNop(),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.Workers < 0 {
		return fmt.Errorf("tws: negative worker count %d", c.Workers)
	}
	if c.NumEventLoop < 0 {
		return fmt.Errorf("tws: negative event loop count %d", c.NumEventLoop)
	}
	if c.ServerName == "" {
		c.ServerName = h1.DefaultServerName
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}
