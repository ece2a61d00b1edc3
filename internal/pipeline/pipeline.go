// Package pipeline runs one extract, transform and load pass: read an
// object from storage, apply the configured column rules and append the
// result to a warehouse table.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/connector"
	"github.com/systmms/dsload/internal/dataset"
	"github.com/systmms/dsload/internal/extract"
	"github.com/systmms/dsload/internal/logging"
	"github.com/systmms/dsload/internal/transform"
	"github.com/systmms/dsload/internal/warehouse"
)

// State is a pipeline stage
type State string

const (
	StateConfiguring  State = "configuring"
	StateExtracting   State = "extracting"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

const (
	DefaultStorageBlock = "s3-bucket"
	DefaultConfigBlock  = "etl-config"
)

// ConfigurationError is fatal and never retried
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Params are the per-run inputs. Table and Schema fall back to the config
// block values.
type Params struct {
	Key            string
	StorageBlock   string
	ConfigBlock    string
	WarehouseBlock string
	Environment    string
	Table          string
	Schema         string
}

// Result describes a finished run
type Result struct {
	State   State
	Trail   []State
	Key     string
	Schema  string
	Table   string
	Rows    int64
	Summary string
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trail = append(r.Trail, s)
}

// Reader reads a dataset from object storage
type Reader interface {
	Read(ctx context.Context, storage *blocks.Storage, key string) (*dataset.Dataset, error)
}

// ReaderFactory returns a Reader able to reach the given storage block
type ReaderFactory func(ctx context.Context, storage *blocks.Storage) (Reader, error)

// Acquirer produces warehouse connectors
type Acquirer interface {
	Acquire(ctx context.Context, req connector.Request) (*warehouse.Connector, error)
}

// Sink is an open warehouse connection
type Sink interface {
	EnsureTable(ctx context.Context, schema, table string, columns []string) error
	Append(ctx context.Context, ds *dataset.Dataset, schema, table string) (int64, error)
	Close() error
}

// SinkOpener opens a warehouse connection for a connector
type SinkOpener func(ctx context.Context, c *warehouse.Connector) (Sink, error)

// Options wires an Orchestrator
type Options struct {
	Blocks   blocks.Store
	Readers  ReaderFactory
	Acquirer Acquirer
	Sinks    SinkOpener
	Engine   *transform.Engine
	Logger   *logging.Logger
}

// Orchestrator runs pipelines. It holds no per-run state, so one value may
// serve concurrent runs.
type Orchestrator struct {
	blocks   blocks.Store
	readers  ReaderFactory
	acquirer Acquirer
	sinks    SinkOpener
	engine   *transform.Engine
	logger   *logging.Logger
}

// New creates an Orchestrator
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	engine := opts.Engine
	if engine == nil {
		engine = transform.NewEngine(transform.Options{Logger: logger})
	}
	return &Orchestrator{
		blocks:   opts.Blocks,
		readers:  opts.Readers,
		acquirer: opts.Acquirer,
		sinks:    opts.Sinks,
		engine:   engine,
		logger:   logger,
	}
}

// Run executes one pipeline pass. Stages run strictly in order and nothing
// is retried. On failure the returned Result ends in StateFailed and the
// error is the failing stage's error, unmodified.
func (o *Orchestrator) Run(ctx context.Context, p Params) (*Result, error) {
	res := &Result{Key: p.Key}

	err := o.run(ctx, p, res)
	if err != nil {
		res.enter(StateFailed)
		recordRun(StateFailed, 0)
		return res, err
	}

	res.enter(StateDone)
	res.Summary = fmt.Sprintf("Successfully loaded data from %s to warehouse table %s.%s", res.Key, res.Schema, res.Table)
	recordRun(StateDone, res.Rows)
	o.logger.Info("%s", res.Summary)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, p Params, res *Result) error {
	job, err := stage(res, StateConfiguring, func() (*JobConfig, error) {
		return o.configure(p, res)
	})
	if err != nil {
		return err
	}

	raw, err := stage(res, StateExtracting, func() (*dataset.Dataset, error) {
		return o.read(ctx, p)
	})
	if err != nil {
		return err
	}

	transformed, err := stage(res, StateTransforming, func() (*dataset.Dataset, error) {
		o.logger.Debug("Transforming %d columns", len(raw.Columns))
		return o.engine.Apply(raw, job.Rules)
	})
	if err != nil {
		return err
	}

	rows, err := stage(res, StateLoading, func() (int64, error) {
		return o.load(ctx, p, res, transformed)
	})
	if err != nil {
		return err
	}
	res.Rows = rows
	return nil
}

// stage records the transition and duration of one step
func stage[T any](res *Result, s State, fn func() (T, error)) (T, error) {
	res.enter(s)
	start := time.Now()
	out, err := fn()
	recordStage(s, time.Since(start).Seconds())
	return out, err
}

func (o *Orchestrator) configure(p Params, res *Result) (*JobConfig, error) {
	if p.Key == "" {
		return nil, &ConfigurationError{Field: "key", Message: "object key is required"}
	}
	if _, err := extract.FormatOf(p.Key); err != nil {
		return nil, err
	}

	name := p.ConfigBlock
	if name == "" {
		name = DefaultConfigBlock
	}
	if o.blocks == nil {
		return nil, &ConfigurationError{Field: "config", Message: "no block store configured"}
	}
	block, err := o.blocks.LoadConfig(name)
	if err != nil {
		return nil, &ConfigurationError{Field: "config", Message: fmt.Sprintf("failed to load config block %s", name), Err: err}
	}

	job, err := ParseJobConfig(block.Value)
	if err != nil {
		return nil, err
	}

	res.Table = firstNonEmpty(p.Table, job.TableName)
	res.Schema = firstNonEmpty(p.Schema, job.Schema)
	if res.Table == "" {
		return nil, &ConfigurationError{Field: "table_name", Message: "no table given and config block has no table_name"}
	}
	if res.Schema == "" {
		return nil, &ConfigurationError{Field: "schema", Message: "no schema given and config block has no schema"}
	}

	o.logger.Debug("Loading into %s.%s using config block %s", res.Schema, res.Table, name)
	return job, nil
}

func (o *Orchestrator) read(ctx context.Context, p Params) (*dataset.Dataset, error) {
	name := p.StorageBlock
	if name == "" {
		name = DefaultStorageBlock
	}
	storage, err := o.blocks.LoadStorage(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage block %s: %w", name, err)
	}

	reader, err := o.readers(ctx, storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage %s: %w", name, err)
	}

	o.logger.Info("Extracting s3://%s/%s", storage.BucketName, p.Key)
	ds, err := reader.Read(ctx, storage, p.Key)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Extracted %d rows", ds.Rows())
	return ds, nil
}

func (o *Orchestrator) load(ctx context.Context, p Params, res *Result, ds *dataset.Dataset) (int64, error) {
	c, err := o.acquirer.Acquire(ctx, connector.Request{
		BlockName:   p.WarehouseBlock,
		Environment: p.Environment,
		Schema:      res.Schema,
	})
	if err != nil {
		return 0, err
	}
	defer c.Close()

	sink, err := o.sinks(ctx, c)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			o.logger.Debug("Failed to close warehouse connection: %v", cerr)
		}
	}()

	o.logger.Info("Loading into %s.%s", res.Schema, res.Table)
	if err := sink.EnsureTable(ctx, res.Schema, res.Table, ds.Names()); err != nil {
		return 0, err
	}
	rows, err := sink.Append(ctx, ds, res.Schema, res.Table)
	if err != nil {
		return 0, err
	}
	o.logger.Info("Loaded %d rows", rows)
	return rows, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
