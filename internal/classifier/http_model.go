package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// httpModel talks to the model-serving sidecar over JSON. The sidecar
// owns inference; this client only ships one chunk at a time.
type httpModel struct {
	endpoint string
	http     *http.Client
}

func NewHTTPModel(endpoint string, client *http.Client) *httpModel {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpModel{endpoint: endpoint, http: client}
}

type predictRequest struct {
	FilePath string `json:"file_path"`
	Text     string `json:"text"`
}

func (m *httpModel) Predict(ctx context.Context, filePath, chunk string) (Prediction, error) {
	body, err := json.Marshal(predictRequest{FilePath: filePath, Text: chunk})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Prediction{}, fmt.Errorf("model server: status %d: %s", resp.StatusCode, detail)
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("decode model response: %w", err)
	}

	return pred, nil
}
