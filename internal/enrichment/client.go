package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// FileStore is where the combined report document is persisted.
type FileStore interface {
	Save(ctx context.Context, reader io.Reader, filename string) (int64, error)
}

// ProviderError is a non-success answer from the intelligence provider.
// It is terminal for the task that triggered the call.
type ProviderError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("enrichment provider: status %d: %s", e.StatusCode, e.Detail)
}

// Client fetches the file report and the per-sandbox behaviour report
// for a content hash and stores them as one JSON document. Calls to the
// provider are paced: the limiter admits at most one request burst per
// MinInterval because the provider enforces a low per-minute quota.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	files   FileStore
}

func NewClient(baseURL, apiKey string, httpClient *http.Client, limiter *rate.Limiter, files FileStore) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
		limiter: limiter,
		files:   files,
	}
}

// FetchReport retrieves both report halves for sha256 and persists the
// combined document. Returns the stored report path.
func (c *Client) FetchReport(ctx context.Context, sha256 string) (string, error) {
	filesReport, err := c.get(ctx, "/files/"+sha256)
	if err != nil {
		return "", err
	}

	behavioursReport, err := c.get(ctx, "/files/"+sha256+"/behaviours")
	if err != nil {
		return "", err
	}

	combined := map[string]json.RawMessage{
		"files":            filesReport,
		"files_behaviours": behavioursReport,
	}
	doc, err := json.Marshal(combined)
	if err != nil {
		return "", fmt.Errorf("marshal combined report: %w", err)
	}

	reportPath := "reports/" + sha256 + ".json"
	if _, err := c.files.Save(ctx, bytes.NewReader(doc), reportPath); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	slog.Info("report retrieved",
		slog.String("sha256", sha256),
		slog.String("report_path", reportPath),
	)
	return reportPath, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Detail: detail}
	}

	return json.RawMessage(body), nil
}
