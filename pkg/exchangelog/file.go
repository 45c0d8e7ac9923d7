package exchangelog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileSink writes each exchange to <dir>/<name>_<unix>.txt.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("log directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

func (s *FileSink) Record(ctx context.Context, ex Exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := sanitize(ex.TaskName)
	ts := ex.FinishedAt.Unix()
	body := fmt.Sprintf("--- PROMPT ---\n%s\n\n--- RESPONSE ---\n%s", ex.Prompt, ex.Response)

	// Two exchanges for the same task in one second get a numeric suffix.
	for i := 0; i < 100; i++ {
		filename := fmt.Sprintf("%s_%d.txt", name, ts)
		if i > 0 {
			filename = fmt.Sprintf("%s_%d_%d.txt", name, ts, i)
		}

		f, err := os.OpenFile(filepath.Join(s.dir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create exchange file: %w", err)
		}

		if _, err := f.WriteString(body); err != nil {
			f.Close()
			return fmt.Errorf("failed to write exchange file: %w", err)
		}
		return f.Close()
	}

	return fmt.Errorf("too many exchange files for %s at %d", name, ts)
}

func sanitize(name string) string {
	name = unsafeName.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "task"
	}
	return name
}
