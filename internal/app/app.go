package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"dedup-go/internal/config"
	"dedup-go/internal/countcache"
	"dedup-go/internal/creds"
	"dedup-go/internal/dedup"
	"dedup-go/internal/filetype"
	dedupfs "dedup-go/internal/fs"
	"dedup-go/internal/index"
	"dedup-go/internal/store"
)

// Options controls how an App is wired for one CLI run.
type Options struct {
	// NeedsStore indicates the command will talk to the remote store.
	// Scan-only uploads and pure index commands leave it false, which
	// skips credential resolution entirely.
	NeedsStore bool

	// Passphrase unlocks the encrypted credential store. Empty means
	// fall back to environment credentials.
	Passphrase string

	// Verbose mirrors log records to stderr in addition to the log file.
	Verbose bool
}

// App is the application layer between the CLI and the dedup Service.
// It constructs all dependencies from config and manages their lifecycle
// on Close.
type App struct {
	cfg     *config.Config
	index   dedup.Index
	store   dedup.Store
	fsys    dedup.Filesystem
	service *dedup.Service
	cache   *countcache.Cache
	logFile *os.File
}

// New creates a fully wired App from the given config.
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	fsys := dedupfs.NewOSFilesystem(cfg.Filesystem.Ignore)

	idx, err := index.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	var st dedup.Store
	if opts.NeedsStore {
		st, err = newStore(ctx, cfg, opts.Passphrase)
		if err != nil {
			idx.Close()
			return nil, err
		}
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runID, opts.Verbose)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := dedup.NewService(idx, st, fsys, filetype.Classifier{},
		&slogAdapter{l: logger}, dedup.RealClock{}, dedup.UUIDGenerator{})

	return &App{
		cfg:     cfg,
		index:   idx,
		store:   st,
		fsys:    fsys,
		service: svc,
		cache:   countcache.New(cfg.Cache.Path, time.Duration(cfg.Cache.MaxAgeDays)*24*time.Hour),
		logFile: logFile,
	}, nil
}

// newStore builds the configured store, resolving credentials for the s3
// type.
func newStore(ctx context.Context, cfg *config.Config, passphrase string) (dedup.Store, error) {
	var keyID, appKey string
	if cfg.Store.Type == "s3" {
		c, err := creds.NewFileStore(cfg.Credentials).Resolve(passphrase)
		if err != nil {
			return nil, err
		}
		keyID, appKey = c.KeyID, c.AppKey
	}

	st, err := store.New(ctx, cfg.Store, keyID, appKey)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return st, nil
}

// Workers returns the effective worker count: an explicit flag value wins,
// then the config, then the built-in default.
func (a *App) Workers(flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	if a.cfg.Workers > 0 {
		return a.cfg.Workers
	}
	return dedup.DefaultWorkers
}

// Upload resolves the source path and runs the upload pipeline.
func (a *App) Upload(ctx context.Context, opts dedup.UploadOptions) (*dedup.Summary, error) {
	source, info, err := a.fsys.Resolve(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", source)
	}
	opts.Source = source
	return a.service.Upload(ctx, opts)
}

// Download runs the download pipeline.
func (a *App) Download(ctx context.Context, opts dedup.DownloadOptions) (*dedup.Summary, error) {
	return a.service.Download(ctx, opts)
}

// Rescan resolves the source path and refreshes metadata for tracked files.
func (a *App) Rescan(ctx context.Context, opts dedup.RescanOptions) (*dedup.Summary, error) {
	source, info, err := a.fsys.Resolve(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", source)
	}
	opts.Source = source
	return a.service.Rescan(ctx, opts)
}

// ResolveSelection expands a browse selection into record ids.
func (a *App) ResolveSelection(ctx context.Context, sel dedup.Selection) ([]string, error) {
	return a.service.ResolveSelection(ctx, sel)
}

// RestoreSelection restores the selected records under dest.
func (a *App) RestoreSelection(ctx context.Context, ids []string, dest string, onProgress func(done, total int)) (*dedup.Summary, error) {
	return a.service.RestoreSelection(ctx, ids, dest, onProgress)
}

// Index exposes the record index for group and browse commands.
func (a *App) Index() dedup.Index { return a.index }

// CountFiles returns the number of regular files under source, using the
// count cache unless refresh is set. The second return value reports
// whether the count came from the cache.
func (a *App) CountFiles(ctx context.Context, drive, source string, refresh bool) (int, bool, error) {
	source, _, err := a.fsys.Resolve(source)
	if err != nil {
		return 0, false, fmt.Errorf("resolving source: %w", err)
	}

	if !refresh {
		if count, ok := a.cache.Get(drive, source); ok {
			return count, true, nil
		}
	}

	count := 0
	err = a.fsys.Walk(source, func(path string, info fs.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr == nil {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("counting files: %w", err)
	}

	// Cache write failures are non-fatal; the count is already in hand.
	_ = a.cache.Put(drive, source, count)
	return count, false, nil
}

// Close closes the index and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.index.Close(); err != nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
