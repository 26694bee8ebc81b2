package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults used when a config value is left zero.
const (
	DefaultFlushInterval  = time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultDialTimeout    = 5 * time.Second
	DefaultRouteTTL       = time.Minute
)

// --------------------------------------------------------------------------
// Bus client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures one connection to the relay.
type ClientConfig struct {
	// Endpoint of the relay (host:port, socket path or ws:// url depending on transport)
	Endpoint string
	// NodeID announced to the relay
	NodeID NodeID
	// Role announced to the relay (RoleNode or RoleClient)
	Role string
	// ClusterSize is the number of nodes expected to answer a broadcast request (0 = unknown)
	ClusterSize int
	// DialTimeout bounds connect and reconnect attempts
	DialTimeout time.Duration
	// RequestTimeout is used for requests that do not carry their own timeout
	RequestTimeout time.Duration
}

// WithDefaults fills zero values.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.Role == "" {
		c.Role = RoleNode
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	addSection(&sb, "Bus Client")
	addField(&sb, "Relay Endpoint", c.Endpoint)
	addField(&sb, "Node ID", c.NodeID.String())
	addField(&sb, "Role", c.Role)
	addField(&sb, "Cluster Size", strconv.Itoa(c.ClusterSize))
	addField(&sb, "Dial Timeout", c.DialTimeout.String())
	addField(&sb, "Request Timeout", c.RequestTimeout.String())
	return sb.String()
}

// --------------------------------------------------------------------------
// Node configuration struct
// --------------------------------------------------------------------------

// NodeConfig holds everything one cluster node needs at construction.
type NodeConfig struct {
	// ClusterID of this node. Nil runs the node as a non-clustered singleton.
	ClusterID *NodeID
	// ClusterSize is the number of nodes in the cluster
	ClusterSize int

	// Relay connection
	RelayEndpoint  string
	DialTimeout    time.Duration
	RequestTimeout time.Duration

	// Write coalescing
	FlushInterval time.Duration

	// Backing store ("postgres" or "memory") and its connection string
	Store       string
	DatabaseURL string

	// Observability
	LogLevel        string
	MetricsEndpoint string
}

// Clustered reports whether the cluster subsystem is enabled.
func (c *NodeConfig) Clustered() bool {
	return c.ClusterID != nil
}

// BusConfig derives the bus client configuration of this node.
func (c *NodeConfig) BusConfig() ClientConfig {
	cfg := ClientConfig{
		Endpoint:       c.RelayEndpoint,
		Role:           RoleNode,
		ClusterSize:    c.ClusterSize,
		DialTimeout:    c.DialTimeout,
		RequestTimeout: c.RequestTimeout,
	}
	if c.ClusterID != nil {
		cfg.NodeID = *c.ClusterID
	}
	return cfg.WithDefaults()
}

// String returns a formatted string representation of the configuration
func (c *NodeConfig) String() string {
	var sb strings.Builder

	addSection(&sb, "Node Identity")
	if c.ClusterID == nil {
		addField(&sb, "Cluster ID", "none (clustering disabled)")
	} else {
		addField(&sb, "Cluster ID", c.ClusterID.String())
		addField(&sb, "Cluster Size", strconv.Itoa(c.ClusterSize))
		addField(&sb, "Relay Endpoint", c.RelayEndpoint)
		addField(&sb, "Request Timeout", c.RequestTimeout.String())
	}

	addSection(&sb, "Write Coalescing")
	addField(&sb, "Flush Interval", c.FlushInterval.String())

	addSection(&sb, "Backing Store")
	addField(&sb, "Store", c.Store)
	if c.DatabaseURL != "" {
		addField(&sb, "Database URL", redactURL(c.DatabaseURL))
	}

	addSection(&sb, "Logging")
	addField(&sb, "Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField(&sb, "Metrics Endpoint", c.MetricsEndpoint)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Relay configuration struct
// --------------------------------------------------------------------------

// RelayConfig configures the relay process.
type RelayConfig struct {
	// Endpoint the relay listens on
	Endpoint string
	// RouteTTL is how long a request nonce is routable back to its requester
	RouteTTL time.Duration
	// QueueWarnSize logs a warning when a peer's outbound queue grows beyond it
	QueueWarnSize int
	// LogLevel is the level at which logs will be output
	LogLevel string
}

// WithDefaults fills zero values.
func (c RelayConfig) WithDefaults() RelayConfig {
	if c.RouteTTL <= 0 {
		c.RouteTTL = DefaultRouteTTL
	}
	if c.QueueWarnSize <= 0 {
		c.QueueWarnSize = 1024
	}
	return c
}

// String returns a formatted string representation of the relay configuration
func (c *RelayConfig) String() string {
	var sb strings.Builder
	addSection(&sb, "Relay")
	addField(&sb, "Endpoint", c.Endpoint)
	addField(&sb, "Route TTL", c.RouteTTL.String())
	addField(&sb, "Queue Warn Size", strconv.Itoa(c.QueueWarnSize))
	addSection(&sb, "Logging")
	addField(&sb, "Log Level", c.LogLevel)
	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func addSection(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func addField(sb *strings.Builder, name, value string) {
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}

// redactURL hides the password of a connection string
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || scheme > at {
		return raw
	}
	creds := raw[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return raw[:scheme+3] + creds[:colon] + ":***" + raw[at:]
	}
	return raw
}
