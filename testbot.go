package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"time"
)

// RunTestBot dials the broker's own message-plane listener, logs in, and
// periodically round-trips an Echo so operators get a continuous, visible
// proof that the accept-to-reply path is alive. It never touches another
// client's state — its GUID has no special privileges.
func RunTestBot(ctx context.Context, addr string, tlsConfig *tls.Config, email string) {
	conn, err := dialTestBot(addr, tlsConfig)
	if err != nil {
		slog.Error("testbot: dial failed", "err", err)
		return
	}
	transport := NewTransport(conn)
	defer transport.Close()

	loginID := NewMessageID()
	login := Message{
		MessageID:   loginID,
		Command:     "Login",
		Email:       email,
		Password:    "testbot",
		SyncRequest: true,
		CreatedUTC:  time.Now().UTC(),
	}
	if err := transport.Write(login); err != nil {
		slog.Error("testbot: login write failed", "err", err)
		return
	}
	reply, err := transport.Read()
	if err != nil || !boolValue(reply.Success) {
		slog.Error("testbot: login rejected", "err", err)
		return
	}
	slog.Info("testbot connected", "email", email)

	defer slog.Info("testbot disconnected", "email", email)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var seq int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			payload, _ := json.Marshal(seq)
			msg := Message{
				MessageID:   NewMessageID(),
				Command:     "Echo",
				SyncRequest: true,
				CreatedUTC:  time.Now().UTC(),
				Data:        payload,
			}
			if err := transport.Write(msg); err != nil {
				slog.Error("testbot: write failed", "err", err)
				return
			}
			if _, err := transport.Read(); err != nil {
				slog.Error("testbot: read failed", "err", err)
				return
			}
		}
	}
}

func dialTestBot(addr string, tlsConfig *tls.Config) (net.Conn, error) {
	if tlsConfig != nil {
		cfg := tlsConfig.Clone()
		cfg.InsecureSkipVerify = true
		return tls.Dial("tcp", addr, cfg)
	}
	return net.Dial("tcp", addr)
}
