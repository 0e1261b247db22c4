// Package cache stores synthesized audio on disk, addressed by a digest of
// the (model, speaker, text) triple that produced it.
//
// Entries are write-once. A miss runs the compute function at most once per
// key inside this process; concurrent callers for the same key share that
// flight. Files are written under a temporary name and renamed into place, so
// readers never observe a partial entry. A flight is detached from the
// cancellation of the request that started it and is bounded by its own
// timeout, so an abandoned request still populates the cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nikhilbhutani/voicegateway/internal/audio"
	"github.com/nikhilbhutani/voicegateway/internal/observe"
	"github.com/nikhilbhutani/voicegateway/internal/voice"
)

const (
	filePermissions = 0o644
	dirPermissions  = 0o755
	tempPrefix      = ".tmp-"

	defaultFlightTimeout = 60 * time.Second
	defaultPollInterval  = 250 * time.Millisecond
)

// ErrInvalidName is returned by Open for names that are not plain file names.
var ErrInvalidName = errors.New("invalid cache file name")

// Entry is a stored cache file.
type Entry struct {
	Name   string
	Path   string
	Cached bool // true when the file existed before this call
}

// ComputeFunc produces the audio for a missing entry.
type ComputeFunc func(ctx context.Context) (voice.Result, error)

type ResultCache struct {
	dir           string
	flights       singleflight.Group
	locker        Locker
	flightTimeout time.Duration
	pollInterval  time.Duration
	metrics       *observe.Metrics
}

type Option func(*ResultCache)

func WithLocker(l Locker) Option {
	return func(c *ResultCache) { c.locker = l }
}

// WithFlightTimeout bounds one fill, including waiting on another process's
// lock. Non-positive values keep the default.
func WithFlightTimeout(d time.Duration) Option {
	return func(c *ResultCache) {
		if d > 0 {
			c.flightTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *ResultCache) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithMetrics(m *observe.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

// New returns a cache rooted at dir. The directory is created on first write.
func New(dir string, opts ...Option) (*ResultCache, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	c := &ResultCache{
		dir:           abs,
		locker:        NopLocker{},
		flightTimeout: defaultFlightTimeout,
		pollInterval:  defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir is the absolute cache directory.
func (c *ResultCache) Dir() string { return c.dir }

// DirName is the base name of the cache directory, used as the URL prefix of
// the by-name route.
func (c *ResultCache) DirName() string { return filepath.Base(c.dir) }

// Lookup reports whether a complete entry exists for key.
func (c *ResultCache) Lookup(key Key) (Entry, bool) {
	name := key.FileName()
	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return Entry{}, false
	}
	return Entry{Name: name, Path: path, Cached: true}, true
}

// GetOrCompute returns the entry for key, running compute on a miss. The
// boolean is false when compute produced no audio; nothing is stored then and
// a later call retries. If ctx ends first, its error is returned while the
// flight keeps running.
func (c *ResultCache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (Entry, bool, error) {
	if e, ok := c.Lookup(key); ok {
		c.metrics.RecordCacheLookup(ctx, true)
		return e, true, nil
	}
	c.metrics.RecordCacheLookup(ctx, false)

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key.FileName(), func() (any, error) {
		return c.fill(flightCtx, key, compute)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, false, res.Err
		}
		out := res.Val.(flightResult)
		return out.entry, out.ok, nil
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}

type flightResult struct {
	entry Entry
	ok    bool
}

func (c *ResultCache) fill(parent context.Context, key Key, compute ComputeFunc) (flightResult, error) {
	ctx, cancel := context.WithTimeout(parent, c.flightTimeout)
	defer cancel()

	name := key.FileName()
	var release func()
	for {
		// Another flight or process may have finished since the caller looked.
		if e, ok := c.Lookup(key); ok {
			return flightResult{entry: e, ok: true}, nil
		}

		rel, acquired, err := c.locker.Acquire(ctx, name)
		if err != nil {
			slog.Warn("cache lock unavailable, computing without it", "file", name, "error", err)
			release = func() {}
			break
		}
		if acquired {
			release = rel
			break
		}

		select {
		case <-ctx.Done():
			return flightResult{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	defer release()

	res, err := compute(ctx)
	if err != nil {
		return flightResult{}, err
	}
	if !res.Produced {
		return flightResult{}, nil
	}

	path, err := c.write(name, res.Waveform)
	if err != nil {
		return flightResult{}, err
	}
	return flightResult{entry: Entry{Name: name, Path: path}, ok: true}, nil
}

// write encodes wf to a temporary file in the cache directory and renames it
// over name. The temporary file is removed on any failure.
func (c *ResultCache) write(name string, wf voice.Waveform) (path string, err error) {
	if err := os.MkdirAll(c.dir, dirPermissions); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	tmp := filepath.Join(c.dir, tempPrefix+uuid.NewString()+audio.Extension)
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = audio.EncodeWAV(f, wf); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err = f.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	path = filepath.Join(c.dir, name)
	if err = os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit %s: %w", name, err)
	}
	return path, nil
}

// Open opens a stored entry by exact file name. The lookup is confined to the
// cache directory. Missing entries yield an error matching fs.ErrNotExist.
func (c *ResultCache) Open(name string) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return nil, fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// ValidateName accepts only plain, visible file names.
func ValidateName(name string) error {
	switch {
	case name == "",
		strings.HasPrefix(name, "."),
		strings.ContainsAny(name, `/\`+"\x00"),
		filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
