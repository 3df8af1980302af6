package handler

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
)

// IndexBuiltHandler reloads the catalog whenever the indexer announces a
// new build. A failed reload is logged and the message is not retried; the
// previous snapshot stays in service until the next build or manual reload.
func (h *Handler) IndexBuiltHandler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[analytics.IndexBuiltEvent](value)
		if err != nil {
			return err
		}
		if event.Type != analytics.EventIndexBuilt {
			return nil
		}
		h.logger.Info("index build announced",
			"build_id", event.BuildID,
			"entries", event.Entries,
			"unmatched", event.Unmatched,
		)
		h.ReloadCatalog(ctx, "index.built")
		return nil
	}
}
