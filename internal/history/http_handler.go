package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rpattn/histd/internal/domain"
	"github.com/rpattn/histd/internal/repository"

	"github.com/go-chi/chi/v5"
)

const (
	// CreatedMessage is the body of a successful POST /.
	CreatedMessage = "Successfully created"

	maxUploadSize = 32 << 20
	maxBodySize   = 1 << 20
)

// Handler exposes the history service over HTTP. It is the only place that
// turns service results into responses.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHTTPHandler mounts the history routes on a chi router.
func NewHTTPHandler(service *Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{service: service, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Get("/", h.handleSearch)
	r.Post("/", h.handleCreate)
	r.Post("/import", h.handleImport)
	r.Get("/export", h.handleExport)
	r.Get("/{id}", h.handleShow)
	r.Delete("/{id}", h.handleDelete)
	return r
}

type messageResponse struct {
	Message string `json:"message"`
}

// createPayload uses pointers so that an absent field can be told apart from an empty one.
type createPayload struct {
	Hostname         *string `json:"hostname"`
	WorkingDirectory *string `json:"working_directory"`
	Command          *string `json:"command"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	filter := domain.HistoryFilter{}
	if values, ok := r.URL.Query()["pwd"]; ok && len(values) > 0 {
		filter = domain.ByWorkingDirectory(values[0])
	}

	result, err := h.service.Search(r.Context(), filter)
	if err != nil {
		// Listing degrades to an empty array; the failure is only logged.
		h.logger.ErrorContext(r.Context(), "history search failed", "error", err)
		writeJSON(w, http.StatusOK, []domain.History{})
		return
	}

	if result.Truncated {
		w.Header().Set("X-History-Truncated", "true")
		w.Header().Set("X-History-Limit", strconv.Itoa(domain.SearchLimit))
	}
	writeJSON(w, http.StatusOK, result.Histories)
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	history, found, err := h.service.Find(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "history not found"})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeCreate(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	var missing []string
	if payload.Hostname == nil {
		missing = append(missing, "hostname")
	}
	if payload.WorkingDirectory == nil {
		missing = append(missing, "working_directory")
	}
	if payload.Command == nil {
		missing = append(missing, "command")
	}
	if len(missing) > 0 {
		http.Error(w, fmt.Sprintf("missing required fields: %v", missing), http.StatusBadRequest)
		return
	}

	_, err = h.service.Record(r.Context(), domain.NewHistory{
		Hostname:         *payload.Hostname,
		WorkingDirectory: *payload.WorkingDirectory,
		Command:          *payload.Command,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: CreatedMessage})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	summary, err := h.service.Import(r.Context(), ImportRequest{
		FileName: header.Filename,
		Data:     bytes.NewReader(data),
	})
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := ExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := domain.HistoryFilter{}
	if values, ok := r.URL.Query()["pwd"]; ok && len(values) > 0 {
		filter = domain.ByWorkingDirectory(values[0])
	}

	var buf bytes.Buffer
	result, err := h.service.Export(r.Context(), filter, format, &buf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == ExportXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="history.%s"`, format))
	if result.Truncated {
		w.Header().Set("X-History-Truncated", "true")
		w.Header().Set("X-History-Limit", strconv.Itoa(domain.SearchLimit))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, fmt.Sprintf("invalid id %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrStorageUnavailable):
		h.logger.ErrorContext(r.Context(), "storage unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// decodeCreate reads a JSON body, or a urlencoded / multipart form otherwise.
func decodeCreate(w http.ResponseWriter, r *http.Request) (createPayload, error) {
	var payload createPayload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		defer r.Body.Close()
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&payload); err != nil {
			return createPayload{}, err
		}
		return payload, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodySize); err != nil {
			return createPayload{}, err
		}
	} else if err := r.ParseForm(); err != nil {
		return createPayload{}, err
	}

	payload.Hostname = formValue(r, "hostname")
	payload.WorkingDirectory = formValue(r, "working_directory")
	payload.Command = formValue(r, "command")
	return payload, nil
}

func formValue(r *http.Request, key string) *string {
	values, ok := r.PostForm[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
