package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/adapter"
	"divination-ai/internal/infra/api/apiv1"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.JobBackend = (*HTTPBackend)(nil)

// HTTPBackend talks to the divination API with a bearer credential.
type HTTPBackend struct {
	base   string
	token  string
	client *http.Client
}

func NewHTTPBackend(baseURL, token string, timeout time.Duration) (*HTTPBackend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: backend url %q", domain.ErrInvalidArgument, baseURL)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: bearer token is required", domain.ErrUnauthorized)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBackend{base: u.String(), token: token, client: &http.Client{Timeout: timeout}}, nil
}

func (b *HTTPBackend) Submit(ctx context.Context, p adapter.SubmitParams) (model.Job, error) {
	payload, err := drawPayload(p.Draw)
	if err != nil {
		return model.Job{}, err
	}
	req := apiv1.SubmitRequest{
		Mode:     string(p.Mode),
		Question: p.Question,
		Draw:     payload,
		Provider: p.Provider,
	}
	if p.Metadata != (model.Metadata{}) {
		meta := p.Metadata
		req.Metadata = &meta
	}
	var out apiv1.SubmitResponse
	if err := b.do(ctx, http.MethodPost, "/api/v1/divinations", req, &out); err != nil {
		return model.Job{}, err
	}
	return model.Job{ID: out.ID, Mode: p.Mode, Status: model.JobStatus(out.Status), Provider: p.Provider}, nil
}

func (b *HTTPBackend) GetStatus(ctx context.Context, jobID string) (model.Job, error) {
	var out apiv1.JobResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return model.Job{}, err
	}
	status := model.JobStatus(out.Status)
	if !status.Valid() {
		return model.Job{}, fmt.Errorf("%w: unknown job status %q", domain.ErrBackendRequest, out.Status)
	}
	return model.Job{
		ID:             out.ID,
		Mode:           model.Mode(out.Mode),
		Status:         status,
		Interpretation: out.Interpretation,
		Provider:       out.Provider,
	}, nil
}

func (b *HTTPBackend) Cancel(ctx context.Context, jobID string) error {
	return b.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

// drawPayload extracts the mode-specific part of the draw, the shape the API
// expects under "draw".
func drawPayload(d model.Draw) (json.RawMessage, error) {
	var v any
	switch d.Mode {
	case model.ModeHexagram:
		v = d.Hexagram
	case model.ModeTarot:
		v = d.Tarot
	case model.ModeAstrology:
		v = d.Astrology
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, d.Mode)
	}
	return json.Marshal(v)
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrBackendRequest, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var e apiv1.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = domain.ErrInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrJobTerminal
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	default:
		sentinel = domain.ErrBackendRequest
	}
	return fmt.Errorf("%w: http %d: %s", sentinel, resp.StatusCode, msg)
}
