package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/voicegateway/internal/audio"
)

// Messages returned in the {"message": ...} body.
const (
	MsgTooManyCharacters = "Too many characters"
	MsgNoPhoneme         = "No phoneme"
	MsgNotFound          = "Not found"
	MsgTimedOut          = "Synthesis timed out"
	MsgInternal          = "Internal server error"
	MsgBadRequest        = "Bad request"
)

type messageBody struct {
	Message string `json:"message"`
}

type pathBody struct {
	Path string `json:"path"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

// serveAudio streams an open cache file. Range and conditional requests are
// handled by http.ServeContent.
func serveAudio(w http.ResponseWriter, r *http.Request, f *os.File) {
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Error("failed to stat cache file", "file", f.Name(), "error", err)
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// pathParam returns the decoded route parameter. chi matches on the raw path
// when the request carried escaped characters, so the value is unescaped here.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}
