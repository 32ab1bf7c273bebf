// Package status talks to the conversion worker's HTTP API: status
// snapshots, job start, per-stage payloads and result downloads.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ditatrack/internal/progress"
)

const maxBodyBytes = 8 << 20

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid worker URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    base,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     cfg.Logger,
	}, nil
}

// BaseURL returns the normalised worker URL.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchStatus returns the current snapshot of jobID as an Update.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (progress.Update, error) {
	const op = "fetch status"
	if strings.TrimSpace(jobID) == "" {
		return progress.Update{}, ErrEmptyJobID
	}
	body, err := c.do(ctx, op, http.MethodGet, c.endpoint("api", "process", "status", jobID))
	if err != nil {
		return progress.Update{}, err
	}
	env, err := decodeEnvelope(op, body)
	if err != nil {
		return progress.Update{}, err
	}
	return env.Update(jobID), nil
}

// StartJob asks the worker to begin converting jobID.
func (c *Client) StartJob(ctx context.Context, jobID string) error {
	const op = "start job"
	if strings.TrimSpace(jobID) == "" {
		return ErrEmptyJobID
	}
	body, err := c.do(ctx, op, http.MethodPost, c.endpoint("api", "process", "start", jobID))
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, body)
	return err
}

// StageDetailRaw returns the raw per-stage payload.
func (c *Client) StageDetailRaw(ctx context.Context, jobID string, idx progress.StageIndex) ([]byte, error) {
	const op = "fetch stage detail"
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrEmptyJobID
	}
	if !idx.Valid() {
		return nil, fmt.Errorf("invalid stage %d", idx)
	}
	body, err := c.do(ctx, op, http.MethodGet, c.StageURL(jobID, idx))
	if err != nil {
		return nil, err
	}
	if _, err := decodeEnvelope(op, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Health checks that the worker answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, c.endpoint("api", "health"))
	return err
}

// ResultURL is the download link for the converted package.
func (c *Client) ResultURL(jobID string) string {
	return c.endpoint("api", "download", "result", jobID)
}

// StageURL is the link to the payload of one stage.
func (c *Client) StageURL(jobID string, idx progress.StageIndex) string {
	return c.endpoint("api", "layer", jobID, idx.Layer())
}

// Download streams the blob at rawURL into w and returns the byte count
// and the server-suggested filename, if any.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, string, error) {
	const op = "download"
	resp, cancel, err := c.send(ctx, op, http.MethodGet, rawURL, 0)
	if err != nil {
		return 0, "", err
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, "", &FetchError{Op: op, Kind: KindHTTP, StatusCode: resp.StatusCode, Err: errors.New(snippet(msg))}
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, perr := mime.ParseMediaType(cd); perr == nil {
			filename = path.Base(params["filename"])
		}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, filename, &FetchError{Op: op, Kind: KindNetwork, Err: err}
	}
	return n, filename, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// send waits for the limiter and performs the request. The returned cancel
// releases the per-request timeout and must be called after the body is
// consumed.
func (c *Client) send(ctx context.Context, op, method, rawURL string, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, &FetchError{Op: op, Kind: KindNetwork, Err: err}
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		cancel()
		return nil, nil, &FetchError{Op: op, Kind: KindNetwork, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		c.logger.Debug("worker request failed", "op", op, "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, nil, &FetchError{Op: op, Kind: KindNetwork, Err: err}
	}
	c.logger.Debug("worker request", "op", op, "req_id", reqID, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	return resp, cancel, nil
}

func (c *Client) do(ctx context.Context, op, method, rawURL string) ([]byte, error) {
	resp, cancel, err := c.send(ctx, op, method, rawURL, c.timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Op: op, Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		msg := snippet(body)
		var env Envelope
		if json.Unmarshal(body, &env) == nil {
			if e := ErrorText(env.Error); e != nil {
				msg = *e
			}
		}
		return nil, &FetchError{Op: op, Kind: KindHTTP, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	return body, nil
}

func decodeEnvelope(op string, body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &FetchError{Op: op, Kind: KindDecode, Err: err}
	}
	if env.Rejected() {
		msg := "worker reported failure"
		if e := ErrorText(env.Error); e != nil {
			msg = *e
		}
		return Envelope{}, &FetchError{Op: op, Kind: KindRejected, Err: errors.New(msg)}
	}
	return env, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
