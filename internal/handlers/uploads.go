package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"media-ingest/internal/database"
	"media-ingest/internal/ingest"
	"media-ingest/internal/logging"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/validation"
)

const (
	filePart  = "file"
	titlePart = "title"

	// maxTitleBytes bounds the title form value.
	maxTitleBytes = 4096
)

var errNoFile = errors.New("missing file part")

// FieldInfo describes one upload field for form builders.
type FieldInfo struct {
	Name          string   `json:"name"`
	Collection    string   `json:"collection"`
	FileTypes     []string `json:"fileTypes"`
	Accept        string   `json:"accept"`
	NameMaxLength int      `json:"nameMaxLength"`
}

// ListFields returns every configured upload field.
func (h *Handlers) ListFields(w http.ResponseWriter, _ *http.Request) {
	policy := h.ingester.Policy()
	fields := make([]FieldInfo, 0, len(policy.Fields))
	for _, name := range policy.FieldNames() {
		f, _ := policy.Field(name)
		fields = append(fields, FieldInfo{
			Name:          name,
			Collection:    f.Collection,
			FileTypes:     f.Validation.FileType,
			Accept:        validation.AcceptValue(f.Validation.FileType),
			NameMaxLength: f.MaxNameLength(),
		})
	}
	writeJSON(w, http.StatusOK, fields)
}

// GetAccept returns the HTML accept attribute for a field.
func (h *Handlers) GetAccept(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["field"]
	f, ok := h.ingester.Policy().Field(name)
	if !ok {
		writeJSONError(w, "unknown upload field", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"field":  name,
		"accept": validation.AcceptValue(f.Validation.FileType),
	})
}

// Upload stores a multipart upload. The form carries the media in a "file"
// part; an optional "title" part must come before it. The title may also be
// given as a query parameter.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	if _, ok := h.ingester.Policy().Field(field); !ok {
		writeJSONError(w, "unknown upload field", http.StatusNotFound)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, "expected a multipart/form-data body", http.StatusBadRequest)
		return
	}

	title := r.URL.Query().Get(titlePart)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			err = errNoFile
		}
		if err != nil {
			h.writeUploadError(w, field, err)
			return
		}

		switch part.FormName() {
		case titlePart:
			value, err := io.ReadAll(io.LimitReader(part, maxTitleBytes))
			if err != nil {
				h.writeUploadError(w, field, err)
				return
			}
			title = string(value)
		case filePart:
			out, err := h.ingester.Ingest(r.Context(), ingest.Upload{
				Field:    field,
				Title:    title,
				FileName: part.FileName(),
				Body:     part,
			})
			if err != nil {
				h.writeUploadError(w, field, err)
				return
			}
			w.Header().Set("Location", "/api/uploads/"+out.Record.Slug)
			writeJSON(w, http.StatusCreated, out)
			return
		}
		_ = part.Close()
	}
}

func (h *Handlers) writeUploadError(w http.ResponseWriter, field string, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case mediaerr.IsRejection(err):
		logging.Debug("upload to %s rejected: %v", field, err)
		writeJSONError(w, mediaerr.UserMessage(err), http.StatusUnprocessableEntity)
	case errors.Is(err, ingest.ErrUnknownField):
		writeJSONError(w, "unknown upload field", http.StatusNotFound)
	case errors.As(err, &maxErr):
		writeJSONError(w, "Error: The request body is too large.", http.StatusRequestEntityTooLarge)
	case errors.Is(err, errNoFile):
		writeJSONError(w, "missing file part", http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
		logging.Debug("upload to %s canceled by client", field)
	default:
		logging.Error("upload to %s failed: %v", field, err)
		writeJSONError(w, mediaerr.MsgProcessingFailed, http.StatusInternalServerError)
	}
}

// GetUpload returns a stored upload by its name. Lookups ignore case and
// treat spaces and underscores alike.
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(mux.Vars(r)["name"])
	u, err := h.store.GetUploadBySlug(r.Context(), strings.ReplaceAll(name, " ", "_"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "upload not found", http.StatusNotFound)
	case err != nil:
		logging.Error("get upload %s: %v", name, err)
		writeJSONError(w, "failed to load upload", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

// FindDuplicates lists stored uploads whose original bytes match a BLAKE2b-256
// checksum given as 64 hex characters.
func (h *Handlers) FindDuplicates(w http.ResponseWriter, r *http.Request) {
	checksum := strings.ToLower(mux.Vars(r)["checksum"])
	if len(checksum) != 64 || strings.Trim(checksum, "0123456789abcdef") != "" {
		writeJSONError(w, "checksum must be 64 hex characters", http.StatusBadRequest)
		return
	}

	uploads, err := h.store.FindByChecksum(r.Context(), checksum)
	if err != nil {
		logging.Error("find checksum %s: %v", checksum, err)
		writeJSONError(w, "failed to search uploads", http.StatusInternalServerError)
		return
	}
	if uploads == nil {
		uploads = []*database.Upload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}
