package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/you-humble/detectify/internal/domain"
)

const (
	LabelBenign  = "benign"
	LabelMalware = "malware"

	labelIDBenign  = 0
	labelIDMalware = 1
)

// Prediction is the model verdict for one corpus chunk.
type Prediction struct {
	LabelID int     `json:"label_id"`
	Score   float64 `json:"score"`
}

// Model scores a single chunk that fits the model input window.
type Model interface {
	Predict(ctx context.Context, filePath, chunk string) (Prediction, error)
}

// Adapter owns what the model does not: splitting an oversized corpus
// into overlapping chunks, invoking the model per chunk and aggregating
// the chunk verdicts. Aggregation is deliberately conservative: one
// malware chunk makes the whole file malware.
type Adapter struct {
	model        Model
	chunkSize    int
	chunkOverlap int
}

func NewAdapter(model Model, chunkSize, chunkOverlap int) *Adapter {
	if chunkSize <= 0 {
		chunkSize = 10240
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 3
	}
	return &Adapter{
		model:        model,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

func (a *Adapter) Classify(ctx context.Context, filePath, corpus string) (domain.Result, error) {
	chunks := splitChunks(corpus, a.chunkSize, a.chunkOverlap)

	var (
		maxBenign  float64
		maxMalware float64
		sawMalware bool
	)

	for i, chunk := range chunks {
		pred, err := a.model.Predict(ctx, filePath, chunk)
		if err != nil {
			return domain.Result{}, fmt.Errorf("predict chunk %d/%d: %w", i+1, len(chunks), err)
		}

		switch pred.LabelID {
		case labelIDBenign:
			if pred.Score > maxBenign {
				maxBenign = pred.Score
			}
		case labelIDMalware:
			sawMalware = true
			if pred.Score > maxMalware {
				maxMalware = pred.Score
			}
		default:
			return domain.Result{}, fmt.Errorf("%w: %d", domain.ErrUnknownLabel, pred.LabelID)
		}
	}

	result := domain.Result{Label: LabelBenign, Score: maxBenign}
	if sawMalware {
		result = domain.Result{Label: LabelMalware, Score: maxMalware}
	}

	slog.Debug("corpus classified",
		slog.String("file_path", filePath),
		slog.Int("chunks", len(chunks)),
		slog.String("label", result.Label),
		slog.Float64("score", result.Score),
	)
	return result, nil
}

// splitChunks splits the corpus into whitespace-token windows of size
// tokens, each overlapping the previous one by overlap tokens. An empty
// corpus still produces one (empty) chunk so the model always runs.
func splitChunks(corpus string, size, overlap int) []string {
	tokens := strings.Fields(corpus)
	if len(tokens) == 0 {
		return []string{""}
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
