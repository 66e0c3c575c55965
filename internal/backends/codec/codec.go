// Package codec serializes the pending action queue for key/value backends.
package codec

import (
	"encoding/base64"

	"availsync/internal/types"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

var enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var dec, _ = zstd.NewReader(nil)

// EncodeQueue encodes the queue as JSON, compresses it and base64-url encodes it.
func EncodeQueue(actions []types.PendingAction) (string, error) {
	if actions == nil {
		actions = []types.PendingAction{}
	}
	s, err := json.Marshal(actions)
	if err != nil {
		return "", err
	}
	b := enc.EncodeAll(s, make([]byte, 0, len(s)))
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeQueue reverses EncodeQueue. An empty input is an empty queue.
func DecodeQueue(in string) ([]types.PendingAction, error) {
	if in == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(in)
	if err != nil {
		return nil, err
	}
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, err
	}
	var actions []types.PendingAction
	if err := json.Unmarshal(out, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// CloneQueue deep-copies actions so stores never share memory with callers.
func CloneQueue(actions []types.PendingAction) []types.PendingAction {
	if len(actions) == 0 {
		return nil
	}
	out := make([]types.PendingAction, len(actions))
	for i, a := range actions {
		if a.Body != nil {
			b := *a.Body
			a.Body = &b
		}
		out[i] = a
	}
	return out
}
