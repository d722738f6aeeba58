package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"

	"golang.org/x/net/netutil"

	"hubbroker/internal/httpapi"
)

// Server accepts connections on the message-plane listener and hands each
// one to its own Connection Worker (spec.md §4.4). TLS is optional: a nil
// tlsConfig serves plain TCP.
type Server struct {
	addr      string
	tlsConfig *tls.Config

	registry  *Registry
	processor *Processor
	events    *EventPublisher
	callbacks Callbacks
	flags     *Flags
}

// NewServer wires a Server over its collaborators.
func NewServer(flags *Flags, tlsConfig *tls.Config, registry *Registry, processor *Processor, events *EventPublisher, callbacks Callbacks) *Server {
	return &Server{
		addr:      flags.Addr,
		tlsConfig: tlsConfig,
		registry:  registry,
		processor: processor,
		events:    events,
		callbacks: callbacks,
		flags:     flags,
	}
}

// Run listens on s.addr and accepts connections until ctx is canceled. Each
// accepted connection is handed to a new Connection Worker running in its
// own goroutine; Run itself returns once the listener is closed.
func (s *Server) Run(ctx context.Context) error {
	var ln net.Listener
	var err error
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return err
	}

	if s.flags.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.flags.MaxConnections)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("message plane listening", "addr", s.addr, "tls", s.tlsConfig != nil)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	var port int
	if p, perr := parsePort(portStr); perr == nil {
		port = p
	}

	if s.flags.PerIPLimit > 0 && s.registry.IPConnectionCount(host) >= s.flags.PerIPLimit {
		conn.Close()
		return
	}

	transport := NewTransport(conn)
	client := newUnauthenticatedClient(transport, host, port)

	worker := NewConnectionWorker(client, s.registry, s.processor, s.events, s.callbacks, s.flags)
	worker.Run()
}

func parsePort(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errBadPort
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

var errBadPort = errors.New("server: invalid port")

// brokerView adapts the Registry to httpapi.Broker without the admin HTTP
// package importing package main.
type brokerView struct {
	registry *Registry
}

func (b brokerView) Clients() []httpapi.ClientView {
	all := b.registry.GetAllClients()
	out := make([]httpapi.ClientView, len(all))
	for i, c := range all {
		out[i] = httpapi.ClientView{
			GUID:       c.GUID,
			IP:         c.IP,
			Port:       c.Port,
			LoggedIn:   c.LoggedIn,
			CreatedUTC: c.CreatedUTC,
		}
	}
	return out
}

func (b brokerView) Channels() []httpapi.ChannelView {
	all := b.registry.GetAllChannels()
	out := make([]httpapi.ChannelView, len(all))
	for i, ch := range all {
		out[i] = httpapi.ChannelView{
			GUID:            ch.GUID,
			Name:            ch.Name,
			OwnerGUID:       ch.OwnerGUID,
			Private:         ch.Private,
			SubscriberCount: ch.Subscriber,
			CreatedUTC:      ch.CreatedUTC,
		}
	}
	return out
}

func (b brokerView) ChannelSubscribers(channelGUID string) ([]httpapi.ClientView, bool) {
	if _, ok := b.registry.GetChannelByGUID(channelGUID); !ok {
		return nil, false
	}
	guids := b.registry.GetChannelSubscribers(channelGUID)
	out := make([]httpapi.ClientView, 0, len(guids))
	for _, g := range guids {
		if c := b.registry.GetClientByGUID(g); c != nil {
			out = append(out, httpapi.ClientView{
				GUID:       c.GUID,
				IP:         c.IP,
				Port:       c.Port,
				LoggedIn:   c.LoggedIn,
				CreatedUTC: c.CreatedUTC,
			})
		}
	}
	return out, true
}

var _ httpapi.Broker = brokerView{}
