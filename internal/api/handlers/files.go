package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/nikhilbhutani/voicegateway/internal/cache"
)

type FileStore interface {
	Open(name string) (*os.File, error)
}

type FileHandler struct {
	store FileStore
}

func NewFileHandler(store FileStore) *FileHandler {
	return &FileHandler{store: store}
}

// Serve handles GET /{cacheDir}/{name}. Anything that is not a file directly
// inside the cache directory is reported as not found.
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeMessage(w, http.StatusOK, MsgNotFound)
		return
	}

	f, err := h.store.Open(name)
	switch {
	case errors.Is(err, cache.ErrInvalidName), errors.Is(err, fs.ErrNotExist):
		writeMessage(w, http.StatusOK, MsgNotFound)
		return
	case err != nil:
		slog.Error("failed to open cache file", "name", name, "error", err)
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	serveAudio(w, r, f)
}
