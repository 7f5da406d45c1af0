package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	logBufferSize    = 32 * 1024
	logFlushInterval = 5 * time.Second
)

var errWriterClosed = errors.New("log writer closed")

// BufferedFileWriter appends to a log file through a buffer that a
// background goroutine flushes every few seconds. Close fsyncs, so the
// migration log of a run that crashes right after finishing is complete.
type BufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer

	stop      chan struct{}
	stopped   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewBufferedFileWriter opens path for appending with the default buffer
// and flush interval.
func NewBufferedFileWriter(path string) (*BufferedFileWriter, error) {
	return newBufferedFileWriter(path, logBufferSize, logFlushInterval)
}

// newBufferedFileWriter is NewBufferedFileWriter with explicit tuning.
// A zero interval disables the background flush.
func newBufferedFileWriter(path string, size int, interval time.Duration) (*BufferedFileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	w := &BufferedFileWriter{
		file: f,
		buf:  bufio.NewWriterSize(f, size),
		stop: make(chan struct{}),
	}
	if interval > 0 {
		w.stopped.Add(1)
		go w.flushEvery(interval)
	}
	return w, nil
}

func (w *BufferedFileWriter) flushEvery(interval time.Duration) {
	defer w.stopped.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = w.Flush()
		case <-w.stop:
			return
		}
	}
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered bytes to the OS without fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Buffered returns the number of bytes not yet handed to the OS.
func (w *BufferedFileWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0
	}
	return w.buf.Buffered()
}

// Close flushes, syncs and closes the file. Later calls return the first
// result.
func (w *BufferedFileWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.stopped.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()
		w.closeErr = errors.Join(w.buf.Flush(), w.file.Sync(), w.file.Close())
		w.buf = nil
	})
	return w.closeErr
}
