// Package publisher defines the outbound message publisher used to announce
// completed runs to downstream consumers.
package publisher

import "context"

// Publisher delivers a JSON-serializable payload to a named topic and
// returns the broker-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Noop discards every publish. Used when no broker is configured.
type Noop struct{}

// Publish discards the payload.
func (Noop) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", nil
}
