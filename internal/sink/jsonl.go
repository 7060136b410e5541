package sink

import (
	"context"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"cryptoconnect/models"
)

// JSONL writes one JSON document per line.
type JSONL struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: w}
}

// OpenJSONL resolves output the way the logger does: "stdout", "stderr", or
// a file path rotated by lumberjack.
func OpenJSONL(output string, maxAge int) *JSONL {
	switch output {
	case "", "stdout":
		return NewJSONL(os.Stdout)
	case "stderr":
		return NewJSONL(os.Stderr)
	}
	lj := &lumberjack.Logger{
		Filename: output,
		MaxAge:   maxAge,
		Compress: true,
	}
	return &JSONL{w: lj, closer: lj}
}

func (j *JSONL) Name() string { return "jsonl" }

func (j *JSONL) Write(_ context.Context, ev models.Event) error {
	data, err := Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(data)
	return err
}

func (j *JSONL) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
