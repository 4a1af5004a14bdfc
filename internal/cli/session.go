package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/polygene/internal/config"
	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/uow"
)

// session is the store and factory one command works with.
type session struct {
	cfg      config.Config
	store    entitystore.EntityStore
	factory  *uow.Factory
	registry *prometheus.Registry
	logger   *slog.Logger
}

// openSession loads the configuration and opens its store. Errors are
// reported through f and returned as ExitErrors.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, f *OutputFormatter) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, f.Fail(CodeConfig, err)
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	registry := prometheus.NewRegistry()
	recorder, err := cfg.Recorder(registry)
	if err != nil {
		return nil, f.Fail(CodeConfig, err)
	}

	store, err := config.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, f.Fail(CodeStore, err)
	}
	logger.Debug("store opened", "driver", cfg.Store.Driver)

	return &session{
		cfg:   cfg,
		store: store,
		factory: uow.NewFactory(store,
			uow.WithMetrics(recorder),
			uow.WithLogger(logger),
			uow.WithDefaultOptions(cfg.UnitOptions()),
		),
		registry: registry,
		logger:   logger,
	}, nil
}

// Close releases the store.
func (s *session) Close() error {
	if c, ok := s.store.(entitystore.Closer); ok {
		return c.Close()
	}
	return nil
}

// writeMetrics encodes everything gathered from the session's registry in
// the Prometheus text exposition format.
func (s *session) writeMetrics(w io.Writer) error {
	families, err := s.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// peekType returns the stored type of ref, read outside any unit of work.
func (s *session) peekType(ctx context.Context, ref string) (string, error) {
	r, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	st, err := s.store.EntityState(ctx, r)
	if errors.Is(err, entitystore.ErrEntityNotFound) {
		return "", &uow.Error{
			Code:       uow.ErrCodeNoSuchEntity,
			Message:    "entity not found",
			References: []entity.Reference{r},
			Err:        err,
		}
	}
	if err != nil {
		return "", err
	}
	return st.Type(), nil
}

// withSession opens a session and an execution context for fn and releases
// both afterwards. Units fn leaves open are discarded. With --metrics the
// session's metrics are written to stderr last.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session, f *OutputFormatter) error) error {
	f := opts.formatter(cmd)
	s, err := openSession(cmd.Context(), opts, cmd, f)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("failed to close store", "error", err)
		}
	}()

	if opts.Metrics {
		// Runs after Drain so units discarded there are counted.
		defer func() {
			if err := s.writeMetrics(cmd.ErrOrStderr()); err != nil {
				s.logger.Warn("failed to write metrics", "error", err)
			}
		}()
	}

	ctx, ec := uow.WithExecutionContext(cmd.Context())
	defer ec.Drain(ctx)
	return fn(ctx, s, f)
}
