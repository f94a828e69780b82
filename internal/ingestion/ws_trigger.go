package ingestion

import (
	"context"
	"log"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

// LogsTrigger turns logsSubscribe notifications for the program into poll
// wake-ups. Notifications are coalesced; the poller fetches the data.
type LogsTrigger struct {
	ws        solana.WSClient
	programID string
	logger    *log.Logger
}

// NewLogsTrigger creates a trigger over ws.
func NewLogsTrigger(ws solana.WSClient, programID string, logger *log.Logger) *LogsTrigger {
	if programID == "" {
		programID = domain.OREProgramID
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LogsTrigger{ws: ws, programID: programID, logger: logger}
}

// Subscribe returns a channel that receives a value after program activity.
// The channel is closed when the subscription ends.
func (t *LogsTrigger) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	logsCh, err := t.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{t.programID}})
	if err != nil {
		return nil, err
	}
	t.logger.Printf("[ws-trigger] subscribed to program: %s", t.programID)

	wake := make(chan struct{}, 1)
	go func() {
		defer close(wake)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-logsCh:
				if !ok {
					t.logger.Println("[ws-trigger] logs channel closed")
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wake, nil
}
