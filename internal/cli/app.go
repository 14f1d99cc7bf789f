package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	osfs "github.com/hack-pad/hackpadfs/os"

	"github.com/roach88/crate/internal/blob"
	"github.com/roach88/crate/internal/config"
	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/librarian"
	"github.com/roach88/crate/internal/library"
	"github.com/roach88/crate/internal/logging"
	"github.com/roach88/crate/internal/store"
)

// app is everything a command needs, opened from configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.SQLiteStore
	lib     *library.Library
	closers []func() error
}

// openApp loads the configuration and opens the local library. Logs go
// to errw so they never mix with structured output.
func openApp(ctx context.Context, opts *RootOptions, errw io.Writer) (*app, error) {
	cfg, err := config.Load(config.Options{File: opts.ConfigFile})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(errw, level, cfg.Log.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	st, err := store.Open(cfg.Library.Path, store.WithActorID(cfg.Library.Actor))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open library", err)
	}
	a := &app{cfg: cfg, logger: logger, store: st, closers: []func() error{st.Close}}

	lib, err := library.New(ctx, st, library.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open library", err)
	}
	a.lib = lib
	logger.Debug("library opened", "path", cfg.Library.Path, "actor", lib.Actor(), "config", cfg.File)
	return a, nil
}

// Close releases every store the app opened.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// blobs opens the configured blob directory on the host file system.
func (a *app) blobs() (*blob.Store, error) {
	root, rel, err := hostPath(a.cfg.Library.Blobs)
	if err != nil {
		return nil, err
	}
	return blob.NewStore(root, rel)
}

// providers opens every configured catalog as a rate-limited, cached
// provider.
func (a *app) providers() ([]librarian.Provider, error) {
	pc := a.cfg.Providers
	out := make([]librarian.Provider, 0, len(pc.Catalogs))
	for _, path := range pc.Catalogs {
		st, err := store.OpenReadOnly(path)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
		a.closers = append(a.closers, st.Close)

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		var p librarian.Provider = librarian.NewCatalog(name, st)
		if pc.MinInterval > 0 {
			p = librarian.RateLimited(p, librarian.NewLimiter(pc.MinInterval, pc.Burst))
		}
		if pc.CacheTTL > 0 {
			p = librarian.Cached(p, pc.CacheTTL)
		}
		out = append(out, p)
	}
	return out, nil
}

// lookupOptions returns the librarian options for this configuration.
func (a *app) lookupOptions(persist bool) (librarian.Options, error) {
	mode, ok := librarian.ParseNetworkMode(a.cfg.Providers.Mode)
	if !ok {
		return librarian.Options{}, fmt.Errorf("unknown network mode %q", a.cfg.Providers.Mode)
	}
	providers, err := a.providers()
	if err != nil {
		return librarian.Options{}, err
	}
	return librarian.Options{Providers: providers, Mode: mode, Persist: persist}, nil
}

// hostPath maps a host directory onto the OS file system, returning the
// root FS and the path within it.
func hostPath(dir string) (*osfs.FS, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", err
	}
	root := osfs.NewFS()
	rel, err := root.FromOSPath(abs)
	if err != nil {
		return nil, "", err
	}
	return root, rel, nil
}

// parseRef parses "kind:key".
func parseRef(s string) (entity.Ref, error) {
	kind, key, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return entity.Ref{}, fmt.Errorf("reference %q: want kind:key", s)
	}
	k, err := entity.ParseKind(kind)
	if err != nil {
		return entity.Ref{}, err
	}
	return entity.Ref{Kind: k, Key: key}, nil
}

// load fetches the entity a reference names.
func (a *app) load(ctx context.Context, s string) (entity.Entity, error) {
	ref, err := parseRef(s)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid reference", err)
	}
	e, err := a.lib.Get(ctx, ref.Kind, ref.Key)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read library", err)
	}
	if e == nil {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("%s not found", s))
	}
	return e, nil
}
