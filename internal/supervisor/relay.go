package supervisor

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// lineRelay is an io.Writer that logs each complete line it receives.
type lineRelay struct {
	mu     sync.Mutex
	logger zerolog.Logger
	level  zerolog.Level
	stream string
	buf    []byte
}

func newLineRelay(logger zerolog.Logger, level zerolog.Level, stream string) *lineRelay {
	return &lineRelay{logger: logger, level: level, stream: stream}
}

func (r *lineRelay) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		r.emit(string(r.buf[:idx]))
		r.buf = r.buf[idx+1:]
	}
	return len(p), nil
}

// flush emits any trailing partial line.
func (r *lineRelay) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) > 0 {
		r.emit(string(r.buf))
		r.buf = nil
	}
}

func (r *lineRelay) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	r.logger.WithLevel(r.level).Str("stream", r.stream).Msg(line)
}
