package remote

import (
	"context"
	"io"
	"strings"

	"availsync/internal/types"

	log "github.com/sirupsen/logrus"
)

// ActionSender replays a queued action verbatim against the backend. It is the
// fallback for kinds without a dedicated sender.
type ActionSender struct {
	c *Client
}

func NewActionSender(c *Client) *ActionSender {
	return &ActionSender{c: c}
}

// Send reports true only for a 2xx response.
func (s *ActionSender) Send(ctx context.Context, action types.PendingAction) bool {
	ctx, cancel := context.WithTimeout(ctx, s.c.timeout)
	defer cancel()

	var body []byte
	if action.Body != nil {
		body = []byte(*action.Body)
	}
	method := strings.ToUpper(action.Method)
	if method == "" {
		method = "POST"
	}
	req, err := s.c.newRequest(ctx, method, action.Endpoint, body)
	if err != nil {
		log.WithError(err).WithField("action_id", action.ID).Warn("cannot build action request")
		return false
	}
	req.Header.Set("Idempotency-Key", action.ID)
	resp, err := s.c.http.Do(req)
	if err != nil {
		log.WithError(err).WithField("action_id", action.ID).Debug("action send failed")
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		log.WithFields(log.Fields{
			"action_id": action.ID,
			"kind":      action.Kind,
			"status":    resp.StatusCode,
		}).Warn("action rejected by backend")
	}
	return ok
}
