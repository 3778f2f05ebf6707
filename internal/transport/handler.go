package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/you-humble/detectify/internal/domain"
)

type Usecase interface {
	CreateTask(ctx context.Context, file io.Reader, filename string) (string, error)
	Status(ctx context.Context, taskID string) (domain.StatusResponse, error)
}

type handler struct {
	maxUploadBytes int64
	usecase        Usecase
}

func NewHandler(maxUploadBytesMb int64, uc Usecase) *handler {
	return &handler{
		maxUploadBytes: maxUploadBytesMb << 20,
		usecase:        uc,
	}
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := slog.With(
		slog.String("request_id", RequestID(r.Context())),
		slog.String("handler", "create"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		logger.Error("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file field")
		writeError(w, http.StatusBadRequest, "field `file` is required")
		return
	}
	defer file.Close()

	taskID, err := h.usecase.CreateTask(r.Context(), file, header.Filename)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyUpload) {
			writeError(w, http.StatusBadRequest, "uploaded file is empty")
			return
		}
		logger.Error("CreateTask usecase",
			slog.String("file_name", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cannot create analysis task")
		return
	}

	writeJSON(w, http.StatusCreated, domain.CreateResponse{
		TaskID: taskID,
		Status: domain.StatusQueued,
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := slog.With(
		slog.String("request_id", RequestID(r.Context())),
		slog.String("handler", "status"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	taskID := strings.TrimPrefix(r.URL.Path, "/task/status/")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "missing task ID")
		return
	}

	resp, err := h.usecase.Status(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeJSON(w, http.StatusNotFound, domain.StatusResponse{
				TaskID: taskID,
				Status: domain.StatusNotFound,
			})
			return
		}
		logger.Error("Status usecase",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	switch resp.Status {
	case domain.StatusSuccess:
		writeJSON(w, http.StatusOK, resp)
	case domain.StatusFailure:
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
