package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// RunMetrics logs registry stats every interval until ctx is canceled
// (spec.md §6: operational metrics are an ambient concern, not part of the
// wire protocol).
func RunMetrics(ctx context.Context, registry *Registry, processor *Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients := registry.GetAllClients()
			channels := registry.GetAllChannels()
			slog.Info("metrics",
				"clients", humanize.Comma(int64(len(clients))),
				"channels", humanize.Comma(int64(len(channels))),
				"pending_sync", processor.sync.Len(),
			)
		}
	}
}
