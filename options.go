package translate

import (
	"context"
	"log/slog"

	"github.com/nexelab/translate/cache"
	"github.com/nexelab/translate/ext"
	"github.com/nexelab/translate/filestore"
	"github.com/nexelab/translate/loop"
	"github.com/nexelab/translate/manifest"
	"github.com/nexelab/translate/middleware"
	"github.com/nexelab/translate/resource"
	"github.com/nexelab/translate/worker"
)

// Option configures a Translator.
type Option func(*Translator) error

// Translator coordinates translation jobs: it owns the completion loop,
// the sandboxed file store, the resource loader, the optional
// translation cache, and the worker launcher. Create one with New() and
// functional options, start jobs with Translate or Run, and Close it
// when done.
type Translator struct {
	config   Config
	logger   *slog.Logger
	store    filestore.Store
	quota    filestore.Quota
	loader   resource.Loader
	cache    cache.Store
	launcher worker.Launcher
	lp       *loop.Loop
	exts     *ext.Registry
	stages   middleware.Middleware

	// extras is the deprecated extension-wide manifest tier consulted
	// for link-time library names the program manifest does not list.
	extras *manifest.Manifest

	pending []ext.Extension
}

// New creates a Translator with the given options. The file store,
// loader, and launcher are required; everything else has defaults. The
// completion loop is started immediately.
func New(opts ...Option) (*Translator, error) {
	t := &Translator{
		config: DefaultConfig(),
		logger: slog.Default(),
		quota:  filestore.NopQuota{},
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	switch {
	case t.store == nil:
		return nil, ErrNoFileStore
	case t.loader == nil:
		return nil, ErrNoLoader
	case t.launcher == nil:
		return nil, ErrNoLauncher
	}

	if t.exts == nil {
		t.exts = ext.NewRegistry(t.logger)
	}
	for _, e := range t.pending {
		t.exts.Register(e)
	}
	t.pending = nil

	if t.stages == nil {
		t.stages = middleware.Chain(
			middleware.Recover(t.logger),
			middleware.Timeout(t.logger),
		)
	}

	t.lp = loop.New(loop.WithQueueSize(t.config.QueueSize), loop.WithLogger(t.logger))
	t.lp.Start()
	return t, nil
}

// Logger returns the translator's logger.
func (t *Translator) Logger() *slog.Logger { return t.logger }

// Loop returns the completion loop; callbacks posted to it run serially
// with all pipeline state transitions.
func (t *Translator) Loop() *loop.Loop { return t.lp }

// Extensions returns the extension registry.
func (t *Translator) Extensions() *ext.Registry { return t.exts }

// Config returns a copy of the translator's configuration.
func (t *Translator) Config() Config { return t.config }

// Close notifies extensions of shutdown and stops the completion loop,
// draining already-posted callbacks. Jobs still in flight are abandoned;
// cancel them first for a clean teardown.
func (t *Translator) Close(ctx context.Context) error {
	t.exts.EmitShutdown(ctx)
	return t.lp.Stop(ctx)
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(t *Translator) error {
		t.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) error {
		t.logger = l
		return nil
	}
}

// WithFileStore sets the sandboxed file store scratch files live in.
func WithFileStore(s filestore.Store) Option {
	return func(t *Translator) error {
		t.store = s
		return nil
	}
}

// WithQuota sets the temporary-storage quota tracker.
func WithQuota(q filestore.Quota) Option {
	return func(t *Translator) error {
		t.quota = q
		return nil
	}
}

// WithLoader sets the resource loader that fetches program modules and
// translator binaries.
func WithLoader(l resource.Loader) Option {
	return func(t *Translator) error {
		t.loader = l
		return nil
	}
}

// WithCache sets the translation cache index. Without one, every job
// translates from scratch and nothing is published.
func WithCache(c cache.Store) Option {
	return func(t *Translator) error {
		t.cache = c
		return nil
	}
}

// WithLauncher sets the worker launcher that turns fetched translator
// binaries into running programs.
func WithLauncher(l worker.Launcher) Option {
	return func(t *Translator) error {
		t.launcher = l
		return nil
	}
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(t *Translator) error {
		t.pending = append(t.pending, e)
		return nil
	}
}

// WithStageMiddleware replaces the middleware chain wrapped around each
// worker exchange. The default chain recovers panics and enforces the
// configured stage timeout.
func WithStageMiddleware(mws ...middleware.Middleware) Option {
	return func(t *Translator) error {
		t.stages = middleware.Chain(mws...)
		return nil
	}
}

// WithExtensionManifest sets the deprecated extension-wide manifest used
// as the second resolution tier for link-time library names.
func WithExtensionManifest(m *manifest.Manifest) Option {
	return func(t *Translator) error {
		t.extras = m
		return nil
	}
}
