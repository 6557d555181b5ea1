package services

import (
	"context"

	"github.com/devchaudhary24k/vidcastx/internal/logging"
)

// Notifier hands a finished upload to the downstream transcoding pipeline.
// The session id and storage key are the entire contract.
type Notifier interface {
	VideoReady(ctx context.Context, sessionID, storageKey string) error
}

// LogNotifier is the default Notifier: it only records the handoff. The real
// transcoding queue lives outside this service.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) VideoReady(ctx context.Context, sessionID, storageKey string) error {
	n.logger.Info(ctx, "queued transcoding", "session_id", sessionID, "storage_key", storageKey)
	return nil
}
