package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Config holds the connector settings.
type Config struct {
	InboxDir    string
	Pattern     string
	PipelineURL string
	MaxRetries  int
	BackoffBase time.Duration
	Debounce    time.Duration
	LogLevel    string
}

// Connector watches the inbox and submits matching files to the pipeline.
type Connector struct {
	cfg       Config
	watcher   *fsnotify.Watcher
	submitter *Submitter
	logger    *slog.Logger

	// pending debounces rapid write events per path.
	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewConnector prepares the inbox layout and the filesystem watcher.
func NewConnector(cfg Config, logger *slog.Logger) (*Connector, error) {
	for _, dir := range []string{cfg.InboxDir, processedDir(cfg.InboxDir), errorDir(cfg.InboxDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(cfg.InboxDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.InboxDir, err)
	}

	return &Connector{
		cfg:       cfg,
		watcher:   watcher,
		submitter: NewSubmitter(cfg, logger),
		logger:    logger,
		pending:   make(map[string]*time.Timer),
	}, nil
}

// Run drains pre-existing files, then follows watch events until ctx is
// cancelled.
func (c *Connector) Run(ctx context.Context) error {
	if err := c.drainExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-c.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !c.matches(event.Name) {
				continue
			}
			c.schedule(ctx, event.Name)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (c *Connector) Close() error {
	return c.watcher.Close()
}

// drainExisting submits files already sitting in the inbox at startup.
func (c *Connector) drainExisting(ctx context.Context) error {
	entries, err := os.ReadDir(c.cfg.InboxDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(c.cfg.InboxDir, entry.Name())
		if c.matches(path) {
			c.process(ctx, path)
		}
	}
	return nil
}

// schedule submits the file after the debounce window, collapsing bursts of
// write events while the producer is still writing.
func (c *Connector) schedule(ctx context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, exists := c.pending[path]; exists {
		timer.Reset(c.cfg.Debounce)
		return
	}
	c.pending[path] = time.AfterFunc(c.cfg.Debounce, func() {
		c.mu.Lock()
		delete(c.pending, path)
		c.mu.Unlock()
		c.process(ctx, path)
	})
}

// process reads, submits, and files away one article.
func (c *Connector) process(ctx context.Context, path string) {
	body, err := readArticleFile(path)
	if err != nil {
		c.logger.Error("read article file", "path", path, "error", err)
		c.moveTo(path, errorDir(c.cfg.InboxDir))
		return
	}

	outcome := c.submitter.Submit(ctx, body)
	switch outcome {
	case SubmitAccepted:
		c.logger.Info("article submitted", "path", path)
		c.moveTo(path, processedDir(c.cfg.InboxDir))
	case SubmitRejected:
		c.logger.Warn("article rejected by pipeline", "path", path)
		c.moveTo(path, errorDir(c.cfg.InboxDir))
	case SubmitExhausted:
		// Leave the file in place; it is retried on the next restart.
		c.logger.Error("article submission retries exhausted", "path", path)
	}
}

func (c *Connector) matches(path string) bool {
	rel, err := filepath.Rel(c.cfg.InboxDir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(c.cfg.Pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func (c *Connector) moveTo(path, dir string) {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		c.logger.Error("move article file", "path", path, "dest", dest, "error", err)
	}
}

// readArticleFile loads a plain or gzip-compressed article body.
func readArticleFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

func processedDir(inbox string) string {
	return filepath.Join(inbox, "processed")
}

func errorDir(inbox string) string {
	return filepath.Join(inbox, "errors")
}
