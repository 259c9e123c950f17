// Package cli implements the batchctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"batchcore/internal/blob"
	"batchcore/internal/config"
	"batchcore/internal/core"
	"batchcore/internal/infra/schema"
	"batchcore/internal/platform/logger"
	"batchcore/pkg/domain"
)

type options struct {
	configPath  string
	program     string
	metricsFile string
}

// runtime holds the collaborators opened for one command invocation.
type runtime struct {
	cfg      config.Config
	log      *logger.Logger
	blobs    blob.Store
	store    core.PersistentStore
	catalog  *schema.Catalog
	registry *prometheus.Registry
	service  *core.Service
	program  string
	metrics  string
}

var newLogger = logger.New

func openRuntime(ctx context.Context, opts *options) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(logger.Options{
		Mode:     cfg.Log.Mode,
		Level:    cfg.Log.Level,
		Redact:   cfg.Log.Redact,
		HashSalt: cfg.Log.HashSalt,
	})
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          cfg.Blob.S3.Bucket,
			Region:          cfg.Blob.S3.Region,
			Prefix:          cfg.Blob.S3.Prefix,
			Endpoint:        cfg.Blob.S3.Endpoint,
			PathStyle:       cfg.Blob.S3.PathStyle,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	store, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open node store: %w", err)
	}
	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry, cfg.Metrics.Namespace)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	catalog := schema.NewCatalog(blobs, cfg.Schema.CatalogKey)
	program := opts.program
	if program == "" {
		program = cfg.Schema.Program
	}
	log.Debug("runtime ready", "storage", cfg.Storage.Driver, "blob", blobs.Driver())
	return &runtime{
		cfg:      cfg,
		log:      log,
		blobs:    blobs,
		store:    store,
		catalog:  catalog,
		registry: registry,
		program:  program,
		metrics:  opts.metricsFile,
		service: core.NewService(store, catalog, catalog,
			core.WithLogger(log),
			core.WithMetricsRecorder(recorder),
			core.WithTracer(core.NewLoggerTracer(log)),
			core.WithArchive(blobs),
			core.WithPivotOptions(core.PivotOptions{
				ChildLevel:    cfg.Pivot.ChildLevel,
				SamplingLevel: cfg.Pivot.SamplingLevel,
			}),
		),
	}, nil
}

// Close flushes metrics when requested and releases the store.
func (rt *runtime) Close() error {
	var err error
	if rt.metrics != "" {
		err = prometheus.WriteToTextfile(rt.metrics, rt.registry)
	}
	if cerr := rt.store.Close(); err == nil {
		err = cerr
	}
	rt.log.Sync()
	return err
}

// NewRootCommand builds the batchctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "batchctl",
		Short:         "Pivot, reconcile and persist sampling batch trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("BATCHCORE_CONFIG"), "Path to batchcore YAML config")
	root.PersistentFlags().StringVar(&opts.program, "program", "", "Program whose schema catalog applies (overrides config)")
	root.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newSchemaCommand(opts),
		newPivotCommand(opts),
		newReconcileCommand(),
		newSaveCommand(opts),
		newLoadCommand(opts),
	)
	return root
}

// Execute runs batchctl with os.Args and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRuntime opens the runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, opts *options, fn func(*runtime) error) (err error) {
	rt, err := openRuntime(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(rt)
}

func readTrees(path string) ([]*domain.Node, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	roots, err := domain.DecodeTrees(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return roots, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
