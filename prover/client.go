// Package prover talks to the external proving service that runs
// client-submitted proof jobs.
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"proof-leaderboard/config"
)

var (
	// ErrJobFailed is returned when the service reports the job as failed
	ErrJobFailed = errors.New("proof job failed on the proving service")
	// ErrBadResponse is returned for a response body that cannot be decoded
	ErrBadResponse = errors.New("malformed proving service response")
)

// Result is the outcome of one poll. PublicInput is only set when Pending is false.
type Result struct {
	Pending     bool
	PublicInput []string
}

// Client polls job results. Implementations must be safe for concurrent use.
type Client interface {
	PollResult(ctx context.Context, jobID string) (Result, error)
}

// HTTPClient implements Client against the service's REST API
type HTTPClient struct {
	base    string
	token   string
	timeout time.Duration
	h       *http.Client
	brk     *Breaker
}

// NewHTTPClient builds a client from config. httpClient may be nil.
func NewHTTPClient(cfg config.ProverConfig, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		timeout: cfg.Timeout,
		h:       httpClient,
		brk:     NewBreaker("proving_service", cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout),
	}
}

// Breaker exposes the client's circuit breaker
func (c *HTTPClient) Breaker() *Breaker {
	return c.brk
}

type jobResultResponse struct {
	Status      string          `json:"status"`
	PublicInput json.RawMessage `json:"publicInput"`
}

// PollResult fetches GET /api/v1/jobs/{id}/result. 202 and 404 mean the
// job is not done yet.
func (c *HTTPClient) PollResult(ctx context.Context, jobID string) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		res     Result
		callErr error
	)
	err := c.brk.Execute(ctx, func(ctx context.Context) error {
		res, callErr = c.do(ctx, jobID)
		var se *serviceError
		if errors.As(callErr, &se) {
			return se.err
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if callErr != nil {
		return Result{}, callErr
	}
	return res, nil
}

// serviceError marks failures of the service itself. Only these trip the
// breaker; a bad answer about one job does not.
type serviceError struct {
	err error
}

func (e *serviceError) Error() string { return e.err.Error() }
func (e *serviceError) Unwrap() error { return e.err }

func (c *HTTPClient) do(ctx context.Context, jobID string) (Result, error) {
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%s/result", c.base, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.h.Do(req)
	if err != nil {
		return Result{}, &serviceError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return Result{Pending: true}, nil
	case resp.StatusCode >= 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &serviceError{fmt.Errorf("proving service http %d: %s", resp.StatusCode, string(b))}
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("proving service http %d: %s", resp.StatusCode, string(b))
	}

	var body jobResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, &serviceError{fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}

	switch strings.ToLower(body.Status) {
	case "completed", "complete", "done", "success":
	case "failed", "error":
		return Result{}, fmt.Errorf("%w: %s", ErrJobFailed, jobID)
	default:
		return Result{Pending: true}, nil
	}

	input, err := decodePublicInput(body.PublicInput)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return Result{PublicInput: input}, nil
}

// decodePublicInput accepts the array itself or a string holding the
// JSON-encoded array. Elements may be strings or numbers; anything else
// becomes "" and fails validation downstream.
func decodePublicInput(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		if inner == "" {
			return nil, nil
		}
		raw = json.RawMessage(inner)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		e = bytes.TrimSpace(e)
		if len(e) == 0 {
			continue
		}
		switch {
		case e[0] == '"':
			var s string
			if err := json.Unmarshal(e, &s); err != nil {
				return nil, err
			}
			out[i] = s
		case e[0] == '-' || (e[0] >= '0' && e[0] <= '9'):
			out[i] = string(e)
		}
	}
	return out, nil
}
