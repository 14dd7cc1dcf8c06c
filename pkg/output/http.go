package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned when the receiver answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http output: status %d: %s", e.Code, e.Body)
}

// HTTPOutput POSTs each batch as one NDJSON body.
type HTTPOutput struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewHTTPOutput(url string, headers map[string]string) *HTTPOutput {
	return &HTTPOutput{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPOutput) WriteBatch(ctx context.Context, entries [][]byte) error {
	var body bytes.Buffer
	for _, e := range entries {
		body.Write(e)
		body.WriteByte('\n')
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, &body)
	if err != nil {
		return fmt.Errorf("http output: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
