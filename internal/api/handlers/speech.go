package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"path"
	"time"
	"unicode/utf8"

	"github.com/nikhilbhutani/voicegateway/internal/cache"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, message string) (cache.Entry, bool, error)
}

type SpeechHandler struct {
	dispatcher    Dispatcher
	cacheDirName  string
	maxTextLength int
	timeout       time.Duration
}

func NewSpeechHandler(d Dispatcher, cacheDirName string, maxTextLength int, timeout time.Duration) *SpeechHandler {
	return &SpeechHandler{
		dispatcher:    d,
		cacheDirName:  cacheDirName,
		maxTextLength: maxTextLength,
		timeout:       timeout,
	}
}

// Speak handles GET /{text}.
//
// With ?local from a loopback peer the absolute cache path is returned; with
// ?remote the by-name URL path is returned; otherwise the audio is streamed.
func (h *SpeechHandler) Speak(w http.ResponseWriter, r *http.Request) {
	text, err := pathParam(r, "text")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, MsgBadRequest)
		return
	}

	if utf8.RuneCountInString(text) > h.maxTextLength {
		writeMessage(w, http.StatusOK, MsgTooManyCharacters)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	entry, ok, err := h.dispatcher.Dispatch(ctx, text)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeMessage(w, http.StatusGatewayTimeout, MsgTimedOut)
		return
	case errors.Is(err, context.Canceled):
		// client went away
		return
	case err != nil:
		slog.Error("dispatch failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	case !ok:
		writeMessage(w, http.StatusOK, MsgNoPhoneme)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("local") && fromLoopback(r):
		writeJSON(w, http.StatusOK, pathBody{Path: entry.Path})
	case q.Has("remote"):
		writeJSON(w, http.StatusOK, pathBody{Path: path.Join("/", h.cacheDirName, entry.Name)})
	default:
		f, err := os.Open(entry.Path)
		if err != nil {
			slog.Error("failed to open cache file", "file", entry.Name, "error", err)
			writeMessage(w, http.StatusInternalServerError, MsgInternal)
			return
		}
		serveAudio(w, r, f)
	}
}

// fromLoopback reports whether the TCP peer is a loopback address.
// Forwarding headers are not consulted.
func fromLoopback(r *http.Request) bool {
	ap, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	return ap.Addr().Unmap().IsLoopback()
}
