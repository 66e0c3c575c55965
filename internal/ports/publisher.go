package ports

import "context"

// Publisher ships raw terminal-failure records to an external sink. The target
// is a topic ARN for SNS and ignored by log-only publishers.
type Publisher interface {
	PublishRaw(ctx context.Context, target string, payload []byte) error
}
