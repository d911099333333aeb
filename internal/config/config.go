package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the demo binary's own process configuration: ports, Mongo
// URI, seed, log format, tick interval, snapshot interval, retention
// days. The core's own SimBrokerSettings is a separate, smaller parser
// (internal/simbroker.ParseSettings) driven by a map[string]string,
// because the core must remain embeddable by callers that are not this
// binary and cannot assume flag/env access.
type Config struct {
	// Server
	WSPort int
	Host   string

	// Database
	MongoURI string

	// Audit log retention
	AuditRetentionDays int

	// Simulation
	Seed             int64
	SnapshotInterval time.Duration
	SendBufferSize   int
	LogFormat        string

	// Symbol tick generation
	TickStepNs uint64
}

func Load() *Config {
	c := &Config{}

	flag.IntVar(&c.WSPort, "port", envInt("SIMBROKER_PORT", 8100), "WebSocket/REST server port")
	flag.StringVar(&c.Host, "host", envStr("SIMBROKER_HOST", "0.0.0.0"), "Listen host")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/simbroker"), "MongoDB connection URI")
	flag.IntVar(&c.AuditRetentionDays, "audit-retention", envInt("AUDIT_RETENTION_DAYS", 7), "Audit log retention in days (0 = keep forever)")

	flag.Int64Var(&c.Seed, "seed", envInt64("SIMBROKER_SEED", 0), "PRNG seed (0 = derive from process id)")
	flag.IntVar(&c.SendBufferSize, "send-buffer", envInt("SEND_BUFFER", 4096), "Per-client send buffer size")
	flag.StringVar(&c.LogFormat, "log-format", envStr("LOG_FORMAT", "console"), "Log output format: console or json")

	flag.Parse()

	c.SnapshotInterval = 30 * time.Second
	c.TickStepNs = 100_000_000 // 100ms simulated step between ticks

	if c.Seed == 0 {
		c.Seed = int64(os.Getpid())
	}

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
