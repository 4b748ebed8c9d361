package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openharvest/harvestd/internal/domain"
)

// archivePrefix is where the archive job writes its JSONL exports.
const archivePrefix = "archive/operations/"

// ArchiveHandler serves the exported operation archives from blob storage.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler backed by blob storage.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logHandler(logger, "archive")}
}

// ListArchives enumerates the exported archive objects.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.blobs.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.Error("list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archives": infos,
		"count":    len(infos),
	})
}

// GetArchive streams one archive object as JSON Lines. The name path segment
// is the object's base name under the archive prefix.
// GET /api/archives/{name}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive name")
		return
	}

	body, err := h.blobs.Get(r.Context(), archivePrefix+name)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("archive stream interrupted",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}
