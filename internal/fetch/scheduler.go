/*
Package fetch downloads filing documents concurrently with per-host pacing,
retries and atomic writes.
*/
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shanehull/filingscraper/internal/retry"
	"github.com/shanehull/filingscraper/internal/types"
)

const (
	DefaultWorkers  = 5
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 300 * time.Millisecond
	DefaultHostRate = 4.0
)

var errMalformedPDF = errors.New("response is not a PDF document")

// StatusError is a non-2xx document response. It is never retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download document: received status code %d from %s", e.StatusCode, e.URL)
}

type Options struct {
	Workers int
	// Random pause after each download, taken by the worker that did it.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Requests per second per host; zero disables limiting.
	HostRate  float64
	UserAgent string
	Retry     retry.Policy
}

type Scheduler struct {
	http   *http.Client
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewScheduler(httpClient *http.Client, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}
	return &Scheduler{
		http:     httpClient,
		opts:     opts,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

type job struct {
	index int
	task  types.RetrievalTask
}

// FetchAll retrieves every task and returns the paths that are present on
// disk afterwards, in task order. Tasks sharing a destination run once.
// A failed document is logged and left out; it never stops the batch.
func (s *Scheduler) FetchAll(ctx context.Context, tasks []types.RetrievalTask) []string {
	unique := dedupe(tasks)
	if len(unique) == 0 {
		return nil
	}

	workers := s.opts.Workers
	if workers > len(unique) {
		workers = len(unique)
	}

	jobs := make(chan job)
	results := make([]string, len(unique))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = s.run(ctx, id, j.task)
			}
		}(w)
	}

	for i, t := range unique {
		jobs <- job{index: i, task: t}
	}
	close(jobs)
	wg.Wait()

	paths := make([]string, 0, len(results))
	for _, p := range results {
		if p != "" {
			paths = append(paths, p)
		}
	}

	s.logger.Info("batch complete",
		zap.Int("tasks", len(unique)),
		zap.Int("retrieved", len(paths)),
		zap.Int("failed", len(unique)-len(paths)))

	return paths
}

func dedupe(tasks []types.RetrievalTask) []types.RetrievalTask {
	seen := make(map[string]struct{}, len(tasks))
	out := make([]types.RetrievalTask, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.Destination]; ok {
			continue
		}
		seen[t.Destination] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, worker int, task types.RetrievalTask) string {
	log := s.logger.With(
		zap.Int("worker_id", worker),
		zap.String("title", task.Announcement.Title),
		zap.String("path", filepath.Base(task.Destination)))

	if _, err := os.Stat(task.Destination); err == nil {
		log.Debug("already downloaded")
		return task.Destination
	}

	if err := s.download(ctx, task); err != nil {
		log.Warn("download failed", zap.String("url", task.Announcement.DocumentURL), zap.Error(err))
		return ""
	}
	log.Info("downloaded")

	s.pause(ctx)
	return task.Destination
}

func (s *Scheduler) download(ctx context.Context, task types.RetrievalTask) error {
	var body []byte
	err := s.opts.Retry.Do(ctx, s.logger, func() error {
		if err := s.wait(ctx, task.Announcement.DocumentURL); err != nil {
			return err
		}
		b, err := s.get(ctx, task.Announcement.DocumentURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return err
	}

	if task.Announcement.DocumentType == types.DocumentPDF && !bytes.HasPrefix(bytes.TrimSpace(body), []byte("%PDF")) {
		return errMalformedPDF
	}

	if err := os.MkdirAll(filepath.Dir(task.Destination), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", task.Destination, err)
	}
	if err := renameio.WriteFile(task.Destination, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", task.Destination, err)
	}
	return nil
}

func (s *Scheduler) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	return io.ReadAll(resp.Body)
}

// wait blocks until the host of rawURL may receive another request.
func (s *Scheduler) wait(ctx context.Context, rawURL string) error {
	if s.opts.HostRate <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid document URL %q: %w", rawURL, err)
	}

	s.mu.Lock()
	lim, ok := s.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.opts.HostRate), 1)
		s.limiters[u.Host] = lim
	}
	s.mu.Unlock()

	return lim.Wait(ctx)
}

func (s *Scheduler) pause(ctx context.Context) {
	d := s.opts.MinDelay
	if span := s.opts.MaxDelay - s.opts.MinDelay; span > 0 {
		d += rand.N(span)
	}
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
