package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/you-humble/detectify/internal/domain"

	"github.com/google/uuid"
)

type FileStore interface {
	Save(ctx context.Context, reader io.Reader, filename string) (int64, error)
	Delete(ctx context.Context, filename string) error
}

type TaskStore interface {
	Create(ctx context.Context, p domain.CreateTaskParams) error
	Task(ctx context.Context, id string) (domain.Task, error)
	Delete(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// usecase is the gateway side of the system: accept an upload, create
// the QUEUED record and hand the task to the pipeline. After creation
// the record is mutated only by stage handlers.
type usecase struct {
	taskTTL        time.Duration
	taskStore      TaskStore
	fileStore      FileStore
	pub            Publisher
	availableTopic string
}

func New(
	taskTTL time.Duration,
	taskStore TaskStore,
	fileStore FileStore,
	pub Publisher,
	availableTopic string,
) *usecase {
	return &usecase{
		taskTTL:        taskTTL,
		taskStore:      taskStore,
		fileStore:      fileStore,
		pub:            pub,
		availableTopic: availableTopic,
	}
}

func (uc *usecase) CreateTask(ctx context.Context, file io.Reader, filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", domain.ErrEmptyUpload
	}

	taskID := uuid.NewString()
	objectName := "uploads/" + taskID + strings.ToLower(filepath.Ext(filename))

	written, err := uc.fileStore.Save(ctx, file, objectName)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	if written == 0 {
		_ = uc.fileStore.Delete(ctx, objectName)
		return "", domain.ErrEmptyUpload
	}

	err = uc.taskStore.Create(ctx, domain.CreateTaskParams{
		ID:       taskID,
		FilePath: objectName,
		TTL:      uc.taskTTL,
	})
	if err != nil {
		_ = uc.fileStore.Delete(ctx, objectName)
		return "", fmt.Errorf("create task: %w", err)
	}

	msg := domain.AvailableTask{TaskID: taskID, FilePath: objectName}
	if err := uc.pub.Publish(ctx, uc.availableTopic, msg); err != nil {
		// Compensation: no pipeline message means the record would sit
		// in QUEUED until TTL, so remove what was written.
		if delErr := uc.taskStore.Delete(ctx, taskID); delErr != nil {
			slog.Warn("compensating task delete",
				slog.String("task_id", taskID),
				slog.String("error", delErr.Error()),
			)
		}
		_ = uc.fileStore.Delete(ctx, objectName)
		return "", fmt.Errorf("enqueue task: %w", err)
	}

	slog.Info("task accepted",
		slog.String("task_id", taskID),
		slog.String("file_path", objectName),
	)
	return taskID, nil
}

func (uc *usecase) Status(ctx context.Context, taskID string) (domain.StatusResponse, error) {
	task, err := uc.taskStore.Task(ctx, taskID)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	resp := domain.StatusResponse{
		TaskID: task.ID,
		Status: task.Status,
	}

	switch task.Status {
	case domain.StatusSuccess:
		resp.Result = task.Result
	default:
		resp.Meta = task.Meta
	}

	return resp, nil
}
