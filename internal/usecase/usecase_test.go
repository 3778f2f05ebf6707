package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/you-humble/detectify/internal/domain"
)

type fakeFileStore struct {
	saved   map[string][]byte
	deleted []string
	saveErr error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{saved: make(map[string][]byte)}
}

func (f *fakeFileStore) Save(ctx context.Context, reader io.Reader, filename string) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	f.saved[filename] = data
	return int64(len(data)), nil
}

func (f *fakeFileStore) Delete(ctx context.Context, filename string) error {
	f.deleted = append(f.deleted, filename)
	delete(f.saved, filename)
	return nil
}

type fakeTaskStore struct {
	created   []domain.CreateTaskParams
	deleted   []string
	createErr error
	task      domain.Task
	taskErr   error
}

func (f *fakeTaskStore) Create(ctx context.Context, p domain.CreateTaskParams) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, p)
	return nil
}

func (f *fakeTaskStore) Task(ctx context.Context, id string) (domain.Task, error) {
	return f.task, f.taskErr
}

func (f *fakeTaskStore) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePublisher struct {
	subjects []string
	payloads []any
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, v any) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, v)
	return nil
}

const topic = "task.available"

func TestCreateTaskHappyPath(t *testing.T) {
	files := newFakeFileStore()
	tasks := &fakeTaskStore{}
	pub := &fakePublisher{}
	uc := New(time.Hour, tasks, files, pub, topic)

	taskID, err := uc.CreateTask(context.Background(), bytes.NewReader([]byte("MZ...")), "Sample.EXE")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if taskID == "" {
		t.Fatal("empty task id")
	}

	if len(tasks.created) != 1 {
		t.Fatalf("want 1 task record, got %d", len(tasks.created))
	}
	p := tasks.created[0]
	if p.ID != taskID || p.TTL != time.Hour {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.FilePath != "uploads/"+taskID+".exe" {
		t.Fatalf("extension must be lowercased and kept: %q", p.FilePath)
	}
	if _, ok := files.saved[p.FilePath]; !ok {
		t.Fatalf("upload not persisted at %q", p.FilePath)
	}

	if len(pub.subjects) != 1 || pub.subjects[0] != topic {
		t.Fatalf("task not announced: %v", pub.subjects)
	}
	msg, ok := pub.payloads[0].(domain.AvailableTask)
	if !ok || msg.TaskID != taskID || msg.FilePath != p.FilePath {
		t.Fatalf("unexpected message: %#v", pub.payloads[0])
	}
}

func TestCreateTaskEmptyUpload(t *testing.T) {
	files := newFakeFileStore()
	uc := New(time.Hour, &fakeTaskStore{}, files, &fakePublisher{}, topic)

	_, err := uc.CreateTask(context.Background(), strings.NewReader(""), "empty.bin")
	if !errors.Is(err, domain.ErrEmptyUpload) {
		t.Fatalf("want ErrEmptyUpload, got %v", err)
	}
	if len(files.deleted) != 1 {
		t.Fatal("empty object must be removed")
	}
}

func TestCreateTaskBlankFilename(t *testing.T) {
	uc := New(time.Hour, &fakeTaskStore{}, newFakeFileStore(), &fakePublisher{}, topic)

	_, err := uc.CreateTask(context.Background(), strings.NewReader("data"), "   ")
	if !errors.Is(err, domain.ErrEmptyUpload) {
		t.Fatalf("want ErrEmptyUpload, got %v", err)
	}
}

func TestCreateTaskStoreFailureCleansUpFile(t *testing.T) {
	files := newFakeFileStore()
	tasks := &fakeTaskStore{createErr: errors.New("redis: connection refused")}
	uc := New(time.Hour, tasks, files, &fakePublisher{}, topic)

	_, err := uc.CreateTask(context.Background(), strings.NewReader("data"), "a.exe")
	if err == nil {
		t.Fatal("want error")
	}
	if len(files.deleted) != 1 {
		t.Fatal("orphaned upload must be removed")
	}
	if len(files.saved) != 0 {
		t.Fatalf("file left behind: %v", files.saved)
	}
}

func TestCreateTaskPublishFailureCompensates(t *testing.T) {
	files := newFakeFileStore()
	tasks := &fakeTaskStore{}
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	uc := New(time.Hour, tasks, files, pub, topic)

	_, err := uc.CreateTask(context.Background(), strings.NewReader("data"), "a.exe")
	if err == nil {
		t.Fatal("want error")
	}
	if len(tasks.deleted) != 1 {
		t.Fatal("task record must be compensated")
	}
	if len(files.deleted) != 1 {
		t.Fatal("upload must be compensated")
	}
}

func TestStatusMapsResultOnlyOnSuccess(t *testing.T) {
	tasks := &fakeTaskStore{task: domain.Task{
		ID:     "task-1",
		Status: domain.StatusSuccess,
		Meta:   "completed",
		Result: &domain.Result{Label: "benign", Score: 0.97},
	}}
	uc := New(time.Hour, tasks, newFakeFileStore(), &fakePublisher{}, topic)

	resp, err := uc.Status(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Result == nil || resp.Result.Label != "benign" {
		t.Fatalf("result missing: %+v", resp)
	}
	if resp.Meta != "" {
		t.Fatalf("meta must be empty on success, got %q", resp.Meta)
	}
}

func TestStatusExposesMetaWhileRunning(t *testing.T) {
	tasks := &fakeTaskStore{task: domain.Task{
		ID:     "task-1",
		Status: domain.StatusProgress,
		Meta:   "hash calculation",
	}}
	uc := New(time.Hour, tasks, newFakeFileStore(), &fakePublisher{}, topic)

	resp, err := uc.Status(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Status != domain.StatusProgress || resp.Meta != "hash calculation" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Result != nil {
		t.Fatalf("no result while running: %+v", resp.Result)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	tasks := &fakeTaskStore{taskErr: domain.ErrTaskNotFound}
	uc := New(time.Hour, tasks, newFakeFileStore(), &fakePublisher{}, topic)

	_, err := uc.Status(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}
