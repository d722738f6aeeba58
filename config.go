package main

import (
	"fmt"
	"time"
)

// Flags holds the configuration inputs consumed by the core (spec.md §6).
// Loading them from CLI flags happens in main.go; Flags itself is the
// validated, ready-to-use result — "configuration loading" is an external
// concern, the shape it loads into is not.
type Flags struct {
	Addr      string // listener address:port for the message-plane
	AdminAddr string // admin HTTP listener address:port; empty disables it
	// AdminToken gates visibility into private channels on the admin HTTP
	// surface (spec.md §4.10): GET /api/channels only includes private
	// channels when the caller presents this token. Empty means the admin
	// surface never reveals private channels.
	AdminToken string

	SendAcknowledgements bool
	SendServerJoinEvents bool
	SendChannelEvents    bool

	HeartbeatIntervalMs  int // 0 disables
	MaxHeartbeatFailures int
	SyncTimeoutMs        int

	MaxConnections   int // 0 = unlimited
	PerIPLimit       int // 0 = unlimited
	ControlRatePerSec float64 // 0 = unlimited

	CertFile string // optional; both Cert/Key must be set to load from disk
	KeyFile  string
	CertValidity time.Duration
}

// DefaultFlags returns the spec's documented defaults (spec.md §4.5, §6).
func DefaultFlags() Flags {
	return Flags{
		Addr:                 ":9443",
		AdminAddr:            "",
		SendAcknowledgements: true,
		SendServerJoinEvents: true,
		SendChannelEvents:    true,
		HeartbeatIntervalMs:  5000,
		MaxHeartbeatFailures: 5,
		SyncTimeoutMs:        15000,
		MaxConnections:       0,
		PerIPLimit:           0,
		ControlRatePerSec:    0,
		CertValidity:         24 * time.Hour,
	}
}

// Validate enforces spec.md §6: "heartbeat interval (ms; 0 disables; else
// must be >= 100)".
func (f Flags) Validate() error {
	if f.HeartbeatIntervalMs != 0 && f.HeartbeatIntervalMs < 100 {
		return fmt.Errorf("config: heartbeat interval must be 0 or >= 100ms, got %d", f.HeartbeatIntervalMs)
	}
	if f.MaxHeartbeatFailures <= 0 {
		return fmt.Errorf("config: max heartbeat failures must be positive, got %d", f.MaxHeartbeatFailures)
	}
	if f.SyncTimeoutMs <= 0 {
		return fmt.Errorf("config: sync timeout must be positive, got %d", f.SyncTimeoutMs)
	}
	if (f.CertFile == "") != (f.KeyFile == "") {
		return fmt.Errorf("config: cert file and key file must both be set or both empty")
	}
	return nil
}

func (f Flags) heartbeatInterval() time.Duration {
	return time.Duration(f.HeartbeatIntervalMs) * time.Millisecond
}

func (f Flags) syncTimeout() time.Duration {
	return time.Duration(f.SyncTimeoutMs) * time.Millisecond
}
