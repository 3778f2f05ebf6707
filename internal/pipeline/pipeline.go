package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/you-humble/detectify/internal/domain"
)

// hashBufSize is the chunk size for streaming the file through the
// digest without loading it whole.
const hashBufSize = 128 * 1024

type TaskStore interface {
	Task(ctx context.Context, id string) (domain.Task, error)
	Update(ctx context.Context, id string, upd domain.TaskUpdate) error
}

type ReportCache interface {
	Lookup(ctx context.Context, sha256 string) (domain.ReportCacheEntry, bool, error)
	SaveReport(ctx context.Context, sha256, reportPath string) error
	SaveResult(ctx context.Context, sha256 string, r domain.Result) error
}

type FileStore interface {
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
}

// Enricher fetches a threat report for a hash missing from the cache.
// Implementations are rate-limited.
type Enricher interface {
	FetchReport(ctx context.Context, sha256 string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, filePath, corpus string) (domain.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Extractor normalizes a raw report document into the classifier corpus.
type Extractor func(report []byte) (string, error)

// Topics carries the five stage subjects in pipeline order.
type Topics struct {
	Available string
	Hash      string
	Report    string
	Classify  string
	Completed string
}

// Pipeline wires the five stage handlers. Every handler is idempotent on
// its visible side effects: delivery is at-least-once, and a returned
// error means "leave the message for redelivery" while a terminal fault
// is converted into a FAILURE write and the message is consumed.
type Pipeline struct {
	store      TaskStore
	cache      ReportCache
	files      FileStore
	enricher   Enricher
	classifier Classifier
	extract    Extractor
	pub        Publisher
	topics     Topics
}

func New(
	store TaskStore,
	cache ReportCache,
	files FileStore,
	enricher Enricher,
	classifier Classifier,
	extract Extractor,
	pub Publisher,
	topics Topics,
) *Pipeline {
	return &Pipeline{
		store:      store,
		cache:      cache,
		files:      files,
		enricher:   enricher,
		classifier: classifier,
		extract:    extract,
		pub:        pub,
		topics:     topics,
	}
}

// HandleAvailable is the ingestion stage: mark the task STARTED and hand
// it to the hash stage.
func (p *Pipeline) HandleAvailable(ctx context.Context, data []byte) error {
	var msg domain.AvailableTask
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.dropMalformed(p.topics.Available, err)
	}

	if done, err := p.advance(ctx, msg.TaskID, domain.StatusStarted, ""); err != nil || done {
		return err
	}

	return p.pub.Publish(ctx, p.topics.Hash, domain.HashTask{
		TaskID:   msg.TaskID,
		FilePath: msg.FilePath,
	})
}

// HandleHash streams the file through SHA-256. Recomputing on a
// redelivered message yields the same digest, so repeats are harmless.
func (p *Pipeline) HandleHash(ctx context.Context, data []byte) error {
	var msg domain.HashTask
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.dropMalformed(p.topics.Hash, err)
	}

	if done, err := p.advance(ctx, msg.TaskID, domain.StatusProgress, "hash calculation"); err != nil || done {
		return err
	}

	digest, err := p.hashFile(ctx, msg.FilePath)
	if err != nil {
		return p.fail(ctx, msg.TaskID, fmt.Errorf("hash %s: %w", msg.FilePath, err))
	}

	upd := domain.TaskUpdate{SHA256: &digest}
	if err := p.store.Update(ctx, msg.TaskID, upd); err != nil {
		return fmt.Errorf("store sha256 for %s: %w", msg.TaskID, err)
	}

	return p.pub.Publish(ctx, p.topics.Report, domain.ReportTask{
		TaskID:   msg.TaskID,
		FilePath: msg.FilePath,
		SHA256:   digest,
	})
}

// HandleReport resolves the threat report for the content hash:
// cache-aside on the sha256 key, external fetch only on a miss. A
// non-success provider answer is terminal for the task.
func (p *Pipeline) HandleReport(ctx context.Context, data []byte) error {
	var msg domain.ReportTask
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.dropMalformed(p.topics.Report, err)
	}

	if done, err := p.advance(ctx, msg.TaskID, domain.StatusProgress, "receiving report"); err != nil || done {
		return err
	}

	entry, hit, err := p.cache.Lookup(ctx, msg.SHA256)
	if err != nil {
		return fmt.Errorf("report cache lookup %s: %w", msg.SHA256, err)
	}

	reportPath := entry.ReportPath
	if !hit || reportPath == "" {
		reportPath, err = p.enricher.FetchReport(ctx, msg.SHA256)
		if err != nil {
			return p.fail(ctx, msg.TaskID, fmt.Errorf("fetch report for %s: %w", msg.SHA256, err))
		}
		if err := p.cache.SaveReport(ctx, msg.SHA256, reportPath); err != nil {
			return fmt.Errorf("cache report %s: %w", msg.SHA256, err)
		}
	} else {
		slog.Debug("report cache hit", slog.String("sha256", msg.SHA256))
	}

	upd := domain.TaskUpdate{ReportPath: &reportPath}
	if err := p.store.Update(ctx, msg.TaskID, upd); err != nil {
		return fmt.Errorf("store report path for %s: %w", msg.TaskID, err)
	}

	return p.pub.Publish(ctx, p.topics.Classify, domain.ClassifyTask{
		TaskID:     msg.TaskID,
		FilePath:   msg.FilePath,
		SHA256:     msg.SHA256,
		ReportPath: reportPath,
	})
}

// HandleClassify turns the report into a corpus and scores it. A cached
// verdict for the same content hash short-circuits the model call. Model
// faults are contained per task: the worker pool stays alive.
func (p *Pipeline) HandleClassify(ctx context.Context, data []byte) error {
	var msg domain.ClassifyTask
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.dropMalformed(p.topics.Classify, err)
	}

	if done, err := p.advance(ctx, msg.TaskID, domain.StatusProgress, "classification"); err != nil || done {
		return err
	}

	if entry, hit, err := p.cache.Lookup(ctx, msg.SHA256); err == nil && hit && entry.Result != nil {
		slog.Debug("classification cache hit", slog.String("sha256", msg.SHA256))
		return p.publishCompleted(ctx, msg, *entry.Result)
	}

	result, err := p.classify(ctx, msg)
	if err != nil {
		return p.fail(ctx, msg.TaskID, err)
	}

	return p.publishCompleted(ctx, msg, result)
}

func (p *Pipeline) classify(ctx context.Context, msg domain.ClassifyTask) (domain.Result, error) {
	f, _, err := p.files.Open(ctx, msg.ReportPath)
	if err != nil {
		return domain.Result{}, fmt.Errorf("open report %s: %w", msg.ReportPath, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return domain.Result{}, fmt.Errorf("read report %s: %w", msg.ReportPath, err)
	}

	corpus, err := p.extract(raw)
	if err != nil {
		return domain.Result{}, fmt.Errorf("extract features: %w", err)
	}

	result, err := p.classifier.Classify(ctx, msg.FilePath, corpus)
	if err != nil {
		return domain.Result{}, fmt.Errorf("classify: %w", err)
	}

	return result, nil
}

func (p *Pipeline) publishCompleted(ctx context.Context, msg domain.ClassifyTask, result domain.Result) error {
	return p.pub.Publish(ctx, p.topics.Completed, domain.CompletedTask{
		TaskID: msg.TaskID,
		SHA256: msg.SHA256,
		Label:  result.Label,
		Score:  result.Score,
	})
}

// HandleCompleted writes the terminal SUCCESS record and upserts the
// verdict into the content-hash cache so an identical upload can skip
// classification entirely.
func (p *Pipeline) HandleCompleted(ctx context.Context, data []byte) error {
	var msg domain.CompletedTask
	if err := json.Unmarshal(data, &msg); err != nil {
		return p.dropMalformed(p.topics.Completed, err)
	}

	task, err := p.store.Task(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("load task %s: %w", msg.TaskID, err)
	}
	if task.Status == domain.StatusFailure {
		return nil
	}

	status := domain.StatusSuccess
	meta := "completed"
	result := domain.Result{Label: msg.Label, Score: msg.Score}
	upd := domain.TaskUpdate{
		Status: &status,
		Meta:   &meta,
		Result: &result,
	}
	if err := p.store.Update(ctx, msg.TaskID, upd); err != nil {
		return fmt.Errorf("store result for %s: %w", msg.TaskID, err)
	}

	if msg.SHA256 != "" {
		if err := p.cache.SaveResult(ctx, msg.SHA256, result); err != nil {
			// The cache write is an optimization: the task itself is
			// already terminal, so only log.
			slog.Warn("cache result upsert",
				slog.String("sha256", msg.SHA256),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("task completed",
		slog.String("task_id", msg.TaskID),
		slog.String("label", msg.Label),
		slog.Float64("score", msg.Score),
	)
	return nil
}

// advance writes the next non-terminal status. It reports done=true when
// the message should be consumed without further work: the task record
// is gone (expired) or already terminal, both of which happen under
// redelivery.
func (p *Pipeline) advance(ctx context.Context, taskID string, status domain.TaskStatus, meta string) (done bool, err error) {
	task, err := p.store.Task(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			slog.Warn("message for unknown task dropped", slog.String("task_id", taskID))
			return true, nil
		}
		return false, fmt.Errorf("load task %s: %w", taskID, err)
	}

	if task.Status.Terminal() {
		return true, nil
	}
	if !task.Status.CanAdvance(status) {
		// Late redelivery of an earlier stage; the work is idempotent,
		// let it rerun without regressing the visible status.
		return false, nil
	}

	upd := domain.TaskUpdate{Status: &status, Meta: &meta}
	if err := p.store.Update(ctx, taskID, upd); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("update task %s: %w", taskID, err)
	}
	return false, nil
}

// fail writes the terminal FAILURE record. The original fault is kept in
// meta for the status API; the message is consumed (nil) unless even the
// failure write cannot land, in which case redelivery retries it.
func (p *Pipeline) fail(ctx context.Context, taskID string, cause error) error {
	slog.Error("stage failed",
		slog.String("task_id", taskID),
		slog.String("error", cause.Error()),
	)

	status := domain.StatusFailure
	meta := cause.Error()
	upd := domain.TaskUpdate{Status: &status, Meta: &meta}
	if err := p.store.Update(ctx, taskID, upd); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("write failure for %s: %w", taskID, err)
	}
	return nil
}

func (p *Pipeline) dropMalformed(subject string, err error) error {
	slog.Error("malformed message dropped",
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)
	return nil
}

func (p *Pipeline) hashFile(ctx context.Context, filePath string) (string, error) {
	f, _, err := p.files.Open(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
