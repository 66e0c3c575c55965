package pub

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogPublisher writes records to the process log. Used when no topic is configured.
type LogPublisher struct{}

func (LogPublisher) PublishRaw(ctx context.Context, target string, payload []byte) error {
	log.WithFields(log.Fields{
		"event":  EventTerminalFailure,
		"target": target,
	}).Warn(string(payload))
	return nil
}
