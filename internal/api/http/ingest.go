package http

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
)

// uploadField is the multipart form field carrying the CSV file.
const uploadField = "file"

// readUpload returns the uploaded CSV bytes and a source name. Multipart
// requests carry the file in the "file" field; anything else is the raw body.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", uploadReadError(err)
		}
		return data, "", nil
	}

	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		return nil, "", uploadReadError(err)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, "", ledgererr.InvalidArgument("multipart field %q is required", uploadField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", uploadReadError(err)
	}
	return data, header.Filename, nil
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ledgererr.InvalidArgument("upload exceeds %d bytes", tooLarge.Limit)
	}
	return ledgererr.InvalidArgument("unreadable upload: %v", err)
}

// POST /v1/emissions/upload[?async=true]
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	async := false
	if raw := r.URL.Query().Get("async"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, ledgererr.InvalidArgument("async must be a boolean"))
			return
		}
		async = v
	}

	data, source, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if async {
		if h.cfg.Tasks == nil {
			h.fail(w, r, ledgererr.InvalidArgument("asynchronous ingestion is not enabled"))
			return
		}
		task := h.cfg.Tasks.Submit(r.Context(), source, data)
		w.Header().Set("Location", "/v1/ingest/tasks/"+task.ID)
		writeJSON(w, http.StatusAccepted, task)
		return
	}

	requestID := GetRequestID(r.Context())
	// Ingestion is not cancelled when the client goes away.
	ctx := context.WithoutCancel(r.Context())
	h.cfg.Archiver.Archive(ctx, requestID, data)

	report, err := h.cfg.Ingestor.Ingest(ctx, data)
	if err != nil {
		if StatusFor(err) >= http.StatusInternalServerError {
			h.fail(w, r, err)
			return
		}
		resp := errorResponse(r, err)
		resp.Report = report
		writeJSON(w, StatusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// GET /v1/ingest/tasks/{id}
func (h *Handler) task(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tasks == nil {
		h.fail(w, r, ledgererr.NotFound("ingestion task %q not found", r.PathValue("id")))
		return
	}
	task, err := h.cfg.Tasks.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
