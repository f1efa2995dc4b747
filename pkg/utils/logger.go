package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that appends to a file and shifts it into
// numbered backups (file.1, file.2, ...) once it grows past MaxSize bytes.
// The oldest backup falls off the end.
type RotatingWriter struct {
	Filename   string
	MaxSize    int64
	MaxBackups int

	mu   sync.Mutex
	file *os.File
}

// NewRotatingWriter creates a RotatingWriter. The file is opened lazily on
// first write.
func NewRotatingWriter(filename string, maxSize int64, maxBackups int) *RotatingWriter {
	return &RotatingWriter{
		Filename:   filename,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.Filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

func (w *RotatingWriter) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate shifts file.N to file.N+1 for every backup, moves the live file to
// file.1, and reopens a fresh live file.
func (w *RotatingWriter) rotate() error {
	if err := w.close(); err != nil {
		return err
	}

	for i := w.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", w.Filename, i), fmt.Sprintf("%s.%d", w.Filename, i+1))
	}
	if w.MaxBackups > 0 {
		os.Rename(w.Filename, w.Filename+".1")
	}

	return w.open()
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			// Losing log lines is worse than an unrotated stream.
			return os.Stderr.Write(p)
		}
	}

	if info, err := w.file.Stat(); err == nil && info.Size() > w.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	return w.file.Write(p)
}

// SetupLogger points the standard logger at <logDir>/tinyclaw.log with
// rotation, mirroring every line to stderr.
func SetupLogger(logDir string) {
	os.MkdirAll(logDir, 0755)

	writer := NewRotatingWriter(filepath.Join(logDir, "tinyclaw.log"), 10*1024*1024, 5)
	log.SetOutput(io.MultiWriter(os.Stderr, writer))
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
}
