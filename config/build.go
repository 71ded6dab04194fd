package config

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/sessionmesh"
	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/handler"
	"github.com/hupe1980/sessionmesh/logging"
	"github.com/hupe1980/sessionmesh/session"
	"github.com/hupe1980/sessionmesh/session/badger"
	"github.com/hupe1980/sessionmesh/session/s3"
	"github.com/hupe1980/sessionmesh/session/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// BuildOptions supplies the runtime collaborators Build cannot derive from
// a Config.
type BuildOptions struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// Registerer receives the metrics handler's collectors (defaults to
	// prometheus.DefaultRegisterer).
	Registerer prometheus.Registerer
	// TracerProvider for the tracing handler (defaults to the global provider).
	TracerProvider trace.TracerProvider
	// Host, when set, makes Build go through sessionmesh.Initialize so the
	// Manager becomes the active instance installed on Host.
	Host sessionmesh.Host
}

// Build creates a Manager and registers the configured store followed by
// the configured handlers in order. On failure every store or handler
// already created is closed.
func Build(ctx context.Context, cfg *Config, optFns ...func(o *BuildOptions)) (*sessionmesh.Manager, error) {
	opts := BuildOptions{Registerer: prometheus.DefaultRegisterer}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	store, err := NewStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	handlers := []core.Handler{store}
	for i, hc := range cfg.Handlers {
		h, err := NewHandler(hc, logger, opts.Registerer, opts.TracerProvider)
		if err != nil {
			closeAll(handlers)
			return nil, fmt.Errorf("handlers[%d]: %w", i, err)
		}
		handlers = append(handlers, h)
	}

	managerOpts := func(o *sessionmesh.Options) { o.Logger = logger }
	var m *sessionmesh.Manager
	if opts.Host != nil {
		m = sessionmesh.Initialize(opts.Host, managerOpts)
	} else {
		m = sessionmesh.New(managerOpts)
	}
	if err := m.AddHandler(handlers...); err != nil {
		closeAll(handlers)
		return nil, err
	}

	logger.Info("session manager built", "store", cfg.Store.Type, "handlers", len(cfg.Handlers))
	return m, nil
}

// NewStore opens the canonical store selected by cfg.Type.
func NewStore(ctx context.Context, cfg StoreConfig, logger logging.Logger) (core.Handler, error) {
	switch cfg.Type {
	case StoreMemory, "":
		return session.NewInMemoryStore(), nil
	case StoreFile:
		return session.NewFileStore(func(o *session.FileOptions) {
			if cfg.File.Prefix != "" {
				o.Prefix = cfg.File.Prefix
			}
			o.Logger = logger
		}), nil
	case StoreBadger:
		s, err := badger.Open(badger.Config{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
			TTL:      cfg.Badger.TTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreS3:
		s, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Timeout:         cfg.S3.Timeout,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreSQL:
		s, err := sqlstore.Open(sqlstore.Config{
			Driver: sqlstore.Driver(cfg.SQL.Driver),
			DSN:    cfg.SQL.DSN,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", ErrInvalid, cfg.Type)
	}
}

// NewHandler creates the decorator described by cfg.
func NewHandler(cfg HandlerConfig, logger logging.Logger, reg prometheus.Registerer, tp trace.TracerProvider) (core.Handler, error) {
	switch cfg.Type {
	case HandlerLogging:
		return handler.NewLoggingHandler(logger, func(o *handler.LoggingOptions) {
			o.LogPayloads = cfg.LogPayloads
		}), nil
	case HandlerEncrypt:
		if cfg.Key == "" {
			return nil, fmt.Errorf("%w: encrypt handler requires key", ErrInvalid)
		}
		key, err := handler.KeyFromSecret(cfg.Key, cfg.Salt)
		if err != nil {
			return nil, err
		}
		c, err := handler.NewAEADCipher(key)
		if err != nil {
			return nil, err
		}
		return handler.NewEncryptingHandler(c, logger), nil
	case HandlerCache:
		h, err := handler.NewCachingHandler(func(o *handler.CacheOptions) {
			if cfg.MaxCost > 0 {
				o.MaxCost = cfg.MaxCost
			}
			o.TTL = cfg.TTL
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	case HandlerMetrics:
		return handler.NewMetricsHandler(reg), nil
	case HandlerTracing:
		return handler.NewTracingHandler(tp), nil
	default:
		return nil, fmt.Errorf("%w: unknown handler type %q", ErrInvalid, cfg.Type)
	}
}

func closeAll(handlers []core.Handler) {
	for i := len(handlers) - 1; i >= 0; i-- {
		if c, ok := handlers[i].(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// NewLogger builds the process logger described by cfg. The returned
// closer releases the log file when Output is a path.
func NewLogger(cfg LoggingConfig) (*logging.ChainLogger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var out io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = cfg.Format
	lc.Output = out
	lc.Component = "sessionmesh"
	return logging.NewLogger(lc), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
