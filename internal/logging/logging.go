package logging

import (
	"io"
	"os"
	"sync"

	"oracle-arena/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var writer io.Writer = os.Stdout

// Init configures the global zerolog logger. When cfg.File is set, log
// output goes to a size-capped file instead of stdout.
func Init(cfg config.LogConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if w, err := openLogFileWriter(cfg.File, cfg.MaxMB); err == nil {
			out = w
		}
	}
	writer = out
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
}

// Writer returns the raw sink the logger writes to, so request logging
// middleware can share it.
func Writer() io.Writer {
	return writer
}

// logFileWriter appends to one file and truncates it in place once the
// next write would push it past the byte cap. Retention without an
// external rotator.
type logFileWriter struct {
	mu   sync.Mutex
	path string
	cap  int64
	file *os.File
	size int64
}

func openLogFileWriter(path string, maxMB int) (*logFileWriter, error) {
	if maxMB <= 0 {
		maxMB = 10
	}
	w := &logFileWriter{path: path, cap: int64(maxMB) << 20}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *logFileWriter) open(mode int) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		if err := w.open(os.O_APPEND); err != nil {
			return 0, err
		}
	}
	if w.size+int64(len(p)) > w.cap {
		_ = w.file.Close()
		if err := w.open(os.O_TRUNC); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *logFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
