package notify

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultNotebookBinary  = "notebooklm"
	DefaultCommandTimeout  = 120 * time.Second
	notebookResponseLength = "longer"
)

var notebookIDPattern = regexp.MustCompile(`[a-f0-9-]{36}`)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NotebookSink uploads files as sources of a new NotebookLM notebook through
// the notebooklm CLI, which must already be logged in.
type NotebookSink struct {
	Binary  string
	Persona string
	Timeout time.Duration
	Run     Runner
	Logger  *zap.Logger
}

func (s *NotebookSink) run(ctx context.Context, args ...string) (string, error) {
	binary := s.Binary
	if binary == "" {
		binary = DefaultNotebookBinary
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	run := s.Run
	if run == nil {
		run = execRunner
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(ctx, binary, args...)
	return strings.TrimSpace(string(out)), err
}

func (s *NotebookSink) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *NotebookSink) Upload(ctx context.Context, title string, files []string) (UploadResult, error) {
	failAll := UploadResult{Failed: files}

	out, err := s.run(ctx, "create", title)
	if err != nil {
		return failAll, fmt.Errorf("failed to create notebook %q: %w: %s", title, err, out)
	}
	id := notebookIDPattern.FindString(out)
	if id == "" {
		return failAll, fmt.Errorf("no notebook id in create output: %s", out)
	}
	log := s.logger().With(zap.String("notebook", id))
	log.Info("notebook created", zap.String("title", title))

	if out, err := s.run(ctx, "use", id); err != nil {
		return failAll, fmt.Errorf("failed to select notebook %s: %w: %s", id, err, out)
	}

	var res UploadResult
	for _, f := range files {
		if out, err := s.run(ctx, "source", "add", f); err != nil {
			log.Warn("source upload failed", zap.String("file", filepath.Base(f)), zap.String("output", out), zap.Error(err))
			res.Failed = append(res.Failed, f)
			continue
		}
		log.Info("source uploaded", zap.String("file", filepath.Base(f)))
		res.Succeeded = append(res.Succeeded, f)
	}

	if s.Persona != "" {
		out, err := s.run(ctx, "configure", "--notebook", id, "--persona", s.Persona, "--response-length", notebookResponseLength)
		if err != nil {
			log.Warn("failed to configure notebook persona", zap.String("output", out), zap.Error(err))
		}
	}

	return res, nil
}
