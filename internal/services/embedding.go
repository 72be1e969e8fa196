package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/backoff"
	"github.com/northernlights-labs/ownership-graph/internal/platform/envutil"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

type openAIEmbeddingClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	retry      backoff.Policy
}

func NewEmbeddingClient(log *logger.Logger) (EmbeddingClient, error) {
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	timeoutSec := envutil.Int("OPENAI_TIMEOUT_SECONDS", 60)
	retry := backoff.Default()
	retry.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", 4)

	return &openAIEmbeddingClient{
		log:        log.With("service", "EmbeddingClient"),
		baseURL:    strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		apiKey:     apiKey,
		model:      envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		retry:      retry,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) RetryAfter() time.Duration { return e.retryAfter }

func isRetryableHTTP(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests ||
		(code >= 500 && code <= 599)
}

func isRetryableEmbedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *openAIEmbeddingClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	req := embeddingsRequest{Model: c.model, Input: inputs}
	var resp embeddingsResponse
	if err := c.do(ctx, "/v1/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w: %v", domain.ErrUnavailable, err)
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embed: missing embedding for index %d", i)
		}
	}
	return out, nil
}

func (c *openAIEmbeddingClient) do(ctx context.Context, path string, body any, out any) error {
	attempt := 0
	return backoff.Retry(ctx, c.retry, isRetryableEmbedErr, func(ctx context.Context) error {
		attempt++
		raw, err := c.doOnce(ctx, path, body)
		if err != nil {
			if isRetryableEmbedErr(err) {
				c.log.Warn("OpenAI request retrying",
					"path", path, "attempt", attempt, "max_retries", c.retry.MaxRetries, "error", err.Error())
			}
			return err
		}
		if out == nil {
			return nil
		}
		if uErr := json.Unmarshal(raw, out); uErr != nil {
			return fmt.Errorf("openai decode error: %w", uErr)
		}
		return nil
	})
}

func (c *openAIEmbeddingClient) doOnce(ctx context.Context, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &openAIHTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				httpErr.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, httpErr
	}
	return raw, nil
}
