// Package follower tails a single append-only log file. It owns the file
// handle, tracks the read position, and survives rotation and truncation
// by reopening the path and resetting the position.
//
// The read loop is polling-based: when no complete line is buffered it
// suspends for a fixed interval and retries, so delivery latency is
// bounded by the poll interval. Filesystem notifications, when available,
// only wake the loop early; the per-cycle stat check is what detects
// rotation.
package follower

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
	"github.com/williamzujkowski/arpwatch-docker/pkg/types"
)

var (
	// ErrNotFound is returned when the log file does not appear within
	// the configured wait timeout.
	ErrNotFound = errors.New("log file not found")

	// ErrStopped is returned from Next after Close.
	ErrStopped = errors.New("follower stopped")
)

// Config holds follower configuration.
type Config struct {
	Path             string
	WaitTimeout      time.Duration
	OpenPollInterval time.Duration
	PollInterval     time.Duration
	MaxLineBytes     int

	// OnRotate, when set, is invoked once per handled rotation or
	// truncation.
	OnRotate func()
}

// Follower tails one log file.
type Follower struct {
	cfg     Config
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	file    *os.File
	reader  *bufio.Reader
	pending []byte

	mu     sync.Mutex
	pos    types.FilePosition
	closed bool
}

// Open waits for the log file to exist, then opens it and seeks to
// end-of-file (tail semantics, history is never replayed). The wait polls
// every OpenPollInterval up to WaitTimeout; a miss past the timeout fails
// with an error wrapping ErrNotFound.
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (*Follower, error) {
	f := &Follower{
		cfg:    cfg,
		logger: logger.WithComponent("follower"),
	}

	if err := f.waitForFile(ctx); err != nil {
		return nil, err
	}

	if err := f.openFile(false); err != nil {
		return nil, err
	}

	// Watch the parent directory so rename-and-recreate rotations surface
	// as events even while the path itself is briefly absent. The watcher
	// is an optimization only; the follower degrades to pure polling
	// without it.
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(filepath.Dir(cfg.Path)); err != nil {
			f.logger.Warn().Err(err).Str("path", cfg.Path).Msg("Failed to watch log directory, falling back to polling only")
			watcher.Close()
		} else {
			f.watcher = watcher
		}
	} else {
		f.logger.Warn().Err(err).Msg("Failed to create file watcher, falling back to polling only")
	}

	return f, nil
}

// waitForFile polls for the path until it exists, the timeout elapses, or
// the context is canceled.
func (f *Follower) waitForFile(ctx context.Context) error {
	deadline := time.Now().Add(f.cfg.WaitTimeout)

	for attempt := 1; ; attempt++ {
		if _, err := os.Stat(f.cfg.Path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", f.cfg.Path, err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s did not appear within %s",
				ErrNotFound, f.cfg.Path, f.cfg.WaitTimeout)
		}

		f.logger.Info().
			Str("path", f.cfg.Path).
			Int("attempt", attempt).
			Msg("Waiting for log file to appear")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.OpenPollInterval):
		}
	}
}

// openFile opens the path and positions the reader, at offset zero when
// fromStart is set and at end-of-file otherwise.
func (f *Follower) openFile(fromStart bool) error {
	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.cfg.Path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat %s: %w", f.cfg.Path, err)
	}

	var offset int64
	if !fromStart {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return fmt.Errorf("seek %s: %w", f.cfg.Path, err)
		}
	}

	f.file = file
	// Sizing the buffer to the line cap keeps any single ReadSlice call,
	// and therefore the pending buffer, bounded by MaxLineBytes.
	f.reader = bufio.NewReaderSize(file, f.cfg.MaxLineBytes)
	f.pending = f.pending[:0]

	f.mu.Lock()
	f.pos = types.FilePosition{
		Path:   f.cfg.Path,
		Offset: offset,
		Inode:  inodeOf(stat),
	}
	f.mu.Unlock()

	f.logger.Info().
		Str("path", f.cfg.Path).
		Int64("offset", offset).
		Uint64("inode", f.pos.Inode).
		Msg("Opened log file")

	return nil
}

// Next returns the next complete line with its trailing newline stripped.
// It blocks, polling, until a line is available, the context is canceled,
// or the follower is closed. Lines longer than MaxLineBytes are returned
// in MaxLineBytes-sized pieces rather than buffered without bound.
func (f *Follower) Next(ctx context.Context) (string, error) {
	for {
		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return "", ErrStopped
		}

		if line, ok := f.readLine(); ok {
			return line, nil
		}

		if err := f.checkRotation(); err != nil {
			f.logger.Warn().Err(err).Str("path", f.cfg.Path).Msg("Transient error checking log file, will retry")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.cfg.PollInterval):
		case ev, ok := <-f.watchEvents():
			if ok {
				f.logger.Debug().Str("op", ev.Op.String()).Str("name", ev.Name).Msg("Woken by file event")
			}
		case err, ok := <-f.watchErrors():
			if ok {
				f.logger.Warn().Err(err).Msg("File watcher error")
			}
		}
	}
}

// readLine drains buffered data looking for one complete line. Partial
// trailing data stays pending until its newline arrives or the length cap
// forces it out.
func (f *Follower) readLine() (string, bool) {
	if f.reader == nil {
		return "", false
	}

	for {
		chunk, err := f.reader.ReadSlice('\n')
		f.pending = append(f.pending, chunk...)
		f.advance(int64(len(chunk)))

		switch {
		case err == nil:
			line := trimNewline(f.pending)
			f.pending = f.pending[:0]
			return line, true
		case errors.Is(err, bufio.ErrBufferFull):
			// Keep accumulating up to the cap.
		case errors.Is(err, io.EOF):
			if len(f.pending) >= f.cfg.MaxLineBytes {
				return f.cutPending(), true
			}
			return "", false
		default:
			f.logger.Warn().Err(err).Str("path", f.cfg.Path).Msg("Transient read error")
			return "", false
		}

		if len(f.pending) >= f.cfg.MaxLineBytes {
			return f.cutPending(), true
		}
	}
}

// cutPending emits the first MaxLineBytes of pending data as a line.
// Oversized input must not stall the loop or grow the buffer without
// bound; the remainder is carried into the next line.
func (f *Follower) cutPending() string {
	line := string(f.pending[:f.cfg.MaxLineBytes])
	f.pending = append(f.pending[:0], f.pending[f.cfg.MaxLineBytes:]...)
	return line
}

// checkRotation compares the current file identity and size on disk
// against the open handle. A changed inode or a shrunken file means the
// log was rotated or truncated: reopen from the beginning so nothing
// appended to the replacement file is lost.
func (f *Follower) checkRotation() error {
	stat, err := os.Stat(f.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		// Mid-rotation gap; the next poll picks up the recreated file.
		return nil
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	pos := f.pos
	f.mu.Unlock()

	inode := inodeOf(stat)
	if inode == pos.Inode && stat.Size() >= pos.Offset {
		return nil
	}

	if inode != pos.Inode {
		f.logger.Info().
			Str("path", f.cfg.Path).
			Uint64("old_inode", pos.Inode).
			Uint64("new_inode", inode).
			Msg("Log rotation detected, reopening from start")
	} else {
		f.logger.Info().
			Str("path", f.cfg.Path).
			Int64("offset", pos.Offset).
			Int64("size", stat.Size()).
			Msg("Log truncation detected, reopening from start")
	}

	f.file.Close()
	f.file = nil
	f.reader = nil
	if err := f.openFile(true); err != nil {
		return err
	}

	if f.cfg.OnRotate != nil {
		f.cfg.OnRotate()
	}
	return nil
}

// advance moves the tracked offset forward by n bytes.
func (f *Follower) advance(n int64) {
	if n == 0 {
		return
	}
	f.mu.Lock()
	f.pos.Offset += n
	f.mu.Unlock()
}

// Position returns the current read position. Safe to call concurrently
// with Next.
func (f *Follower) Position() types.FilePosition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Close releases the file handle and watcher. Next returns ErrStopped
// afterwards.
func (f *Follower) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	if f.watcher != nil {
		f.watcher.Close()
	}
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// watchEvents returns the watcher event channel, or a nil channel (which
// blocks forever in select) when no watcher is active.
func (f *Follower) watchEvents() <-chan fsnotify.Event {
	if f.watcher == nil {
		return nil
	}
	return f.watcher.Events
}

func (f *Follower) watchErrors() <-chan error {
	if f.watcher == nil {
		return nil
	}
	return f.watcher.Errors
}

func trimNewline(b []byte) string {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return string(b[:n])
}

// inodeOf extracts the inode from FileInfo
func inodeOf(fi os.FileInfo) uint64 {
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
