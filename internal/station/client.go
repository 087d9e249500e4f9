// Package station hosts the clinic-side scan station: the capture loop, the
// upstream portal client and the administration runner that ties them
// together.
package station

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/service"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

// ErrUpstream marks transport-level failures: the submission may retry later
// and nothing was recorded locally.
var ErrUpstream = errors.New("portal API unavailable")

// ClientConfig tunes the upstream portal client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries uint64
	Logger     *zap.Logger
}

// Client talks to the portal API. Transient failures (5xx, network errors)
// are retried with exponential backoff behind a circuit breaker; HTTP 409 is
// decoded into a success-shaped duplicate result, not an error.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	maxRetries uint64
	logger     *zap.Logger
}

// NewClient constructs the portal client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "portal-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}
}

type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return "server error: " + http.StatusText(e.status)
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

// Administer submits one administration. Conflicts come back as a duplicate
// result carrying the record of the administration that already happened.
func (c *Client) Administer(ctx context.Context, req service.AdministerRequest) (*service.AdministerResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/administrations", nil, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeAdministerResponse(resp)
}

// AdministerDrive submits a drive participant administration through the
// drive-scoped endpoint, which resolves the drive's vaccine server-side.
func (c *Client) AdministerDrive(ctx context.Context, driveID, subjectID string, notes *string) (*service.AdministerResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"subject_id": subjectID,
		"notes":      notes,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/drives/"+url.PathEscape(driveID)+"/administrations", nil, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeAdministerResponse(resp)
}

func decodeAdministerResponse(resp *http.Response) (*service.AdministerResult, error) {
	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusConflict:
		var result service.AdministerResult
		if err := json.Unmarshal(env.Data, &result); err != nil {
			return nil, fmt.Errorf("%w: decode result: %v", ErrUpstream, err)
		}
		if resp.StatusCode == http.StatusConflict {
			result.Duplicate = true
		}
		return &result, nil
	default:
		if env.Error != nil {
			return nil, env.Error
		}
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}
}

// GetDose fetches a dose record with its derived status.
func (c *Client) GetDose(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseView, error) {
	query := url.Values{}
	query.Set("subject_id", subjectID)
	query.Set("vaccine_template_id", vaccineTemplateID)
	query.Set("dose", strconv.Itoa(doseNumber))

	resp, err := c.do(ctx, http.MethodGet, "/doses", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		if env.Error != nil {
			return nil, env.Error
		}
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	var view models.DoseView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		return nil, fmt.Errorf("%w: decode dose: %v", ErrUpstream, err)
	}
	return &view, nil
}

// do runs one request with retry and circuit breaking. The response body is
// the caller's to close.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	var last *http.Response
	operation := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, target, reader)
			if err != nil {
				return nil, err
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, &serverError{status: resp.StatusCode}
			}
			return resp, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: circuit open", ErrUpstream))
			}
			c.logger.Debug("upstream attempt failed", zap.String("path", path), zap.Error(err))
			return err
		}
		last = resp
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, ErrUpstream) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return last, nil
}

func decodeEnvelope(r io.Reader) (*envelope, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
