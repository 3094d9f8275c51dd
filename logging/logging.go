package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// teeWriter buffers log output while the viewer TUI owns the terminal
// and flushes it to the real destination afterwards. It can also mirror
// everything into a log file.
type teeWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	target    io.Writer
	file      *os.File
	buffering bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.buffering {
		w.buf.Write(p)
	} else if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var writer *teeWriter

// Init sets up the process-wide slog logger. With buffered=true all
// output is held back until SetOutput is called.
func Init(buffered bool, levelStr, formatStr string, logToFile bool, logFilePath string) error {
	writer = &teeWriter{buffering: buffered}
	if !buffered {
		writer.target = os.Stderr
	}

	if logToFile {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writer.file = file
	}

	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(formatStr) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput flushes any buffered output to the given writer and
// switches to live logging.
func SetOutput(target io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.buf.Len() > 0 {
		if _, err := target.Write(writer.buf.Bytes()); err != nil {
			return err
		}
		writer.buf.Reset()
	}
	writer.target = target
	writer.buffering = false
	return nil
}

// BufferOutput stops live logging and starts buffering again, e.g.
// while the TUI is being restarted.
func BufferOutput() {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	writer.target = nil
	writer.buffering = true
}

// Close flushes whatever is still buffered and closes the log file.
// Buffered output with no live target ends up on stderr rather than
// being lost.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	if writer.file != nil {
		if writer.buf.Len() > 0 {
			if _, err := writer.file.Write(writer.buf.Bytes()); err != nil {
				firstErr = err
			}
		}
		if err := writer.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	} else if writer.target == nil && writer.buf.Len() > 0 {
		if _, err := os.Stderr.Write(writer.buf.Bytes()); err != nil {
			firstErr = err
		}
	}
	writer.buf.Reset()
	return firstErr
}
