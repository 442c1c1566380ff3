// Package supabase implements the store capability against the Supabase
// PostgREST API: device_config is upserted with merge-duplicates resolution,
// activity/reboot/sensor_data are appended, device_activations serves the
// offline label tool.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360/telemetrygate/errors"
	"github.com/c360/telemetrygate/store"
)

const (
	tableDeviceConfig = "device_config"
	tableActivity     = "activity"
	tableReboot       = "reboot"
	tableSensorData   = "sensor_data"
	tableActivations  = "device_activations"
)

// Client talks to one Supabase project's REST endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests, custom
// transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the project at baseURL (e.g.
// "https://xyz.supabase.co") authenticating with apiKey. Call-level
// deadlines come from the caller's context; the embedded HTTP client
// carries no timeout of its own so the context stays authoritative.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" || apiKey == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "supabase", "New",
			"base URL and API key are required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1",
		apiKey:  apiKey,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ store.Store = (*Client)(nil)
var _ store.ActivationStore = (*Client)(nil)

// UpsertDeviceConfig writes the device's configuration row, merging with an
// existing row for the same device ID.
func (c *Client) UpsertDeviceConfig(ctx context.Context, cfg store.DeviceConfig) error {
	return c.post(ctx, tableDeviceConfig, cfg, "resolution=merge-duplicates")
}

// InsertActivity appends one duty-cycle sample.
func (c *Client) InsertActivity(ctx context.Context, rec store.ActivityRecord) error {
	return c.post(ctx, tableActivity, rec, "")
}

// InsertReboot appends one reboot diagnostic entry.
func (c *Client) InsertReboot(ctx context.Context, rec store.RebootRecord) error {
	return c.post(ctx, tableReboot, rec, "")
}

// InsertSensorData appends one sensor sample.
func (c *Client) InsertSensorData(ctx context.Context, rec store.SensorRecord) error {
	return c.post(ctx, tableSensorData, rec, "")
}

// DeviceExists reports whether a device_config row exists for the device.
func (c *Client) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	rows, err := c.selectRows(ctx, tableDeviceConfig, "devid", deviceID, "devid")
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ActivationCode returns the code already issued for the device, if any.
func (c *Client) ActivationCode(ctx context.Context, deviceID string) (string, error) {
	rows, err := c.selectRows(ctx, tableActivations, "device_id", deviceID, "activation_code")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	code, _ := rows[0]["activation_code"].(string)
	return code, nil
}

// InsertActivation appends one activation code row.
func (c *Client) InsertActivation(ctx context.Context, act store.Activation) error {
	return c.post(ctx, tableActivations, act, "")
}

// post issues a PostgREST insert. A non-empty resolution is added to the
// Prefer header (upsert behavior).
func (c *Client) post(ctx context.Context, table string, payload any, resolution string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "supabase", "post", "marshal "+table+" payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+table, bytes.NewReader(body))
	if err != nil {
		return errors.WrapInvalid(err, "supabase", "post", "build "+table+" request")
	}
	c.setHeaders(req)
	prefer := "return=minimal"
	if resolution != "" {
		prefer += "," + resolution
	}
	req.Header.Set("Prefer", prefer)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "supabase", "post", "write "+table)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.WrapTransient(
			fmt.Errorf("%w: %s returned %d: %s", errors.ErrStoreRejected, table,
				resp.StatusCode, strings.TrimSpace(string(detail))),
			"supabase", "post", "write "+table)
	}
	return nil
}

// selectRows issues a PostgREST equality select, returning the raw rows.
func (c *Client) selectRows(ctx context.Context, table, column, value, selectCols string) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("select", selectCols)
	query.Set(column, "eq."+value)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/"+table+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "supabase", "selectRows", "build "+table+" query")
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "supabase", "selectRows", "query "+table)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s returned %d", errors.ErrStoreRejected, table, resp.StatusCode),
			"supabase", "selectRows", "query "+table)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, errors.WrapTransient(err, "supabase", "selectRows", "decode "+table+" rows")
	}
	return rows, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}
