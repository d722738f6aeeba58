package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hubbroker/internal/adminstore"
	"hubbroker/internal/httpapi"
)

// Version identifies this build for the CLI and the admin API.
const Version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:], "hubbroker.db") {
			return
		}
	}

	flags := DefaultFlags()
	flag.StringVar(&flags.Addr, "addr", flags.Addr, "message-plane listen address")
	flag.StringVar(&flags.AdminAddr, "admin-addr", flags.AdminAddr, "admin REST API listen address (empty disables it)")
	flag.StringVar(&flags.AdminToken, "admin-token", flags.AdminToken, "token required on the admin API to see private channels (empty: never reveal them)")
	dbPath := flag.String("db", "hubbroker.db", "SQLite database path for admin settings and audit log")
	flag.IntVar(&flags.HeartbeatIntervalMs, "heartbeat-ms", flags.HeartbeatIntervalMs, "heartbeat interval in milliseconds (0 disables)")
	flag.IntVar(&flags.MaxHeartbeatFailures, "max-heartbeat-failures", flags.MaxHeartbeatFailures, "consecutive heartbeat write failures before eviction")
	flag.IntVar(&flags.SyncTimeoutMs, "sync-timeout-ms", flags.SyncTimeoutMs, "default sync-request await timeout in milliseconds")
	flag.IntVar(&flags.MaxConnections, "max-connections", flags.MaxConnections, "maximum total connections (0 = unlimited)")
	flag.IntVar(&flags.PerIPLimit, "per-ip-limit", flags.PerIPLimit, "maximum connections per source IP (0 = unlimited)")
	flag.Float64Var(&flags.ControlRatePerSec, "rate-limit", flags.ControlRatePerSec, "maximum inbound messages per second per connection (0 = unlimited)")
	flag.BoolVar(&flags.SendAcknowledgements, "send-acks", flags.SendAcknowledgements, "send send-success/send-failure acknowledgements for async messages")
	flag.BoolVar(&flags.SendServerJoinEvents, "send-server-join-events", flags.SendServerJoinEvents, "notify clients when peers join/leave the server")
	flag.BoolVar(&flags.SendChannelEvents, "send-channel-events", flags.SendChannelEvents, "notify channel subscribers when peers join/leave a channel")
	flag.StringVar(&flags.CertFile, "cert-file", "", "TLS certificate file (empty: generate a self-signed cert)")
	flag.StringVar(&flags.KeyFile, "key-file", "", "TLS private key file (empty: generate a self-signed cert)")
	flag.DurationVar(&flags.CertValidity, "cert-validity", flags.CertValidity, "self-signed certificate validity")
	noTLS := flag.Bool("no-tls", false, "serve plain TCP instead of TLS")
	testBotEmail := flag.String("test-bot", "", "email for a synthetic smoke-test client (empty disables it)")
	openAuth := flag.Bool("open-auth", true, "accept any email/password pair (disable once real credentials are seeded)")
	flag.Parse()

	if err := flags.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	st, err := adminstore.New(*dbPath)
	if err != nil {
		slog.Error("open admin store", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	seedDefaults(st)

	var tlsConfig *tls.Config
	if !*noTLS {
		hostname := ""
		if host, _, err := net.SplitHostPort(flags.Addr); err == nil && host != "" {
			hostname = host
		}
		cfg, fingerprint, err := loadOrGenerateTLS(flags, hostname)
		if err != nil {
			slog.Error("tls setup", "err", err)
			os.Exit(1)
		}
		tlsConfig = cfg
		slog.Info("tls certificate fingerprint", "sha256", fingerprint)
	}

	registry := NewRegistry()
	events := NewEventPublisher(registry, &flags)

	var auth Authenticator
	if *openAuth {
		auth = OpenAuthenticator{}
	} else {
		auth = NewMemoryAuthenticator()
	}

	callbacks := auditCallbacks{store: st}
	processor := NewProcessor(registry, events, &flags, auth, callbacks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	go RunMetrics(ctx, registry, processor, 10*time.Second)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processor.SweepSync(flags.syncTimeout())
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.Optimize(); err != nil {
					slog.Warn("adminstore optimize", "err", err)
				}
			}
		}
	}()

	if *testBotEmail != "" {
		go RunTestBot(ctx, flags.Addr, tlsConfig, *testBotEmail)
	}

	if flags.AdminAddr != "" {
		admin := httpapi.New(brokerView{registry: registry}, Version, flags.AdminToken)
		go func() {
			if err := admin.Run(ctx, flags.AdminAddr); err != nil {
				slog.Error("admin http server", "err", err)
			}
		}()
		slog.Info("admin api listening", "addr", flags.AdminAddr)
	}

	srv := NewServer(&flags, tlsConfig, registry, processor, events, callbacks)
	if err := srv.Run(ctx); err != nil {
		slog.Error("message plane server", "err", err)
		os.Exit(1)
	}
	callbacks.OnServerStopped()
}

// seedDefaults writes factory-default settings when they have not been set
// yet (first-run initialisation).
func seedDefaults(st *adminstore.Store) {
	if _, ok, err := st.GetSetting("server_name"); err == nil && !ok {
		if err := st.SetSetting("server_name", "hubbroker"); err != nil {
			slog.Warn("seed server_name", "err", err)
		}
	}
}

// auditCallbacks records client logins, client disconnects and server stop
// to the admin audit log, layered on top of NoopCallbacks so it only overrides
// what it actually cares about (spec.md §6 Capability Surface).
type auditCallbacks struct {
	NoopCallbacks
	store *adminstore.Store
}

func (a auditCallbacks) OnClientLogin(c ClientSnapshot) {
	_ = a.store.InsertAuditLog(c.GUID, "client_login", c.Email, "")
}

func (a auditCallbacks) OnClientDisconnected(c ClientSnapshot) {
	_ = a.store.InsertAuditLog(c.GUID, "client_disconnected", "", "")
}

func (a auditCallbacks) OnServerStopped() {
	_ = a.store.InsertAuditLog("", "server_stopped", "", "")
}
