// Package remote talks to the availability backend over HTTP.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"availsync/internal/types"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTimeout          = 15 * time.Second
	DefaultAvailabilityPath = "/availability"

	maxResponseBytes = 1 << 20
)

var ErrUnexpectedResponse = errors.New("unexpected response")

type Options struct {
	BaseURL          string
	AvailabilityPath string
	// Token is sent as a bearer credential when set.
	Token   string
	Timeout time.Duration
	Fields  Fields
	HTTP    *http.Client
}

// Client implements ports.SyncClient. Sync never returns an error: every
// network or decoding problem becomes a transient outcome.
type Client struct {
	base    *url.URL
	path    string
	token   string
	timeout time.Duration
	fields  *compiledFields
	http    *http.Client
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, types.Err(types.ErrInvalidConfig, nil, "backend url is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, types.Err(types.ErrInvalidConfig, err, "backend url %q", opts.BaseURL)
	}
	if opts.AvailabilityPath == "" {
		opts.AvailabilityPath = DefaultAvailabilityPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	fields, err := compileFields(opts.Fields)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:    base,
		path:    opts.AvailabilityPath,
		token:   opts.Token,
		timeout: opts.Timeout,
		fields:  fields,
		http:    opts.HTTP,
	}, nil
}

type availabilityBody struct {
	IsAvailable bool `json:"isAvailable"`
}

// Sync writes the target availability.
func (c *Client) Sync(ctx context.Context, target bool, generation uint64) types.Outcome {
	body, _ := json.Marshal(availabilityBody{IsAvailable: target})
	status, payload, err := c.do(ctx, http.MethodPut, c.path, body, func(req *http.Request) {
		req.Header.Set("X-Availability-Generation", strconv.FormatUint(generation, 10))
	})
	if err != nil {
		log.WithError(err).WithField("generation", generation).Warn("availability write failed")
		return types.Transient(err)
	}
	return c.outcome(status, payload)
}

func (c *Client) outcome(status int, payload any) types.Outcome {
	switch {
	case status >= 200 && status < 300:
		if payload == nil {
			return types.Transient(fmt.Errorf("%w: empty body on %d", ErrUnexpectedResponse, status))
		}
		ok, err := evalBool(c.fields.success, payload)
		if err != nil {
			return types.Transient(fmt.Errorf("%w: %v", ErrUnexpectedResponse, err))
		}
		if ok != nil && !*ok {
			return c.rejection(status, payload)
		}
		cooldown, err := evalInt(c.fields.cooldownMs, payload)
		if err != nil {
			return types.Transient(fmt.Errorf("%w: %v", ErrUnexpectedResponse, err))
		}
		idem, err := evalBool(c.fields.idempotent, payload)
		if err != nil {
			return types.Transient(fmt.Errorf("%w: %v", ErrUnexpectedResponse, err))
		}
		out := types.Succeeded(cooldown, idem != nil && *idem)
		if v, err := evalBool(c.fields.isAvailable, payload); err == nil {
			out.IsAvailable = v
		}
		return out
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		// Gateway errors say nothing about the change itself.
		return types.Transient(fmt.Errorf("%w: status %d", ErrUnexpectedResponse, status))
	default:
		return c.rejection(status, payload)
	}
}

func (c *Client) rejection(status int, payload any) types.Outcome {
	code := types.CodeFromStatus(status)
	if s := evalString(c.fields.errorCode, payload); s != "" {
		if parsed := types.ParseRejectCode(strings.ToUpper(s)); parsed != types.Other || code == types.Other {
			code = parsed
		}
	}
	return types.Rejection(code, evalString(c.fields.errorMessage, payload))
}

// Fetch reads the backend's current availability.
func (c *Client) Fetch(ctx context.Context) (bool, error) {
	status, payload, err := c.do(ctx, http.MethodGet, c.path, nil, nil)
	if err != nil {
		return false, err
	}
	if status < 200 || status >= 300 {
		return false, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, status)
	}
	v, err := evalBool(c.fields.isAvailable, payload)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if v == nil {
		return false, fmt.Errorf("%w: isAvailable missing", ErrUnexpectedResponse)
	}
	return *v, nil
}

// do performs one request bounded by the client timeout and decodes a JSON body
// when there is one. A body that fails to decode is an error.
func (c *Client) do(ctx context.Context, method, path string, body []byte, decorate func(*http.Request)) (int, any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, nil, err
	}
	if decorate != nil {
		decorate(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil, nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		// Error pages are often not JSON; the status still classifies them.
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	u := c.resolve(path)
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// resolve joins path onto the base URL. Absolute URLs pass through.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.base.String(), "/") + "/" + strings.TrimLeft(path, "/")
}
