package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/definition"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/aretw0/arbor/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultRedisPrefix namespaces checkpoints and locks in a shared Redis.
const DefaultRedisPrefix = "arbor:"

// Runtime holds what every command needs to build engines from definitions.
type Runtime struct {
	Options  Options
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Sessions *session.Manager
	Loader   *file.Loader
	Tools    *tools.Registry

	metrics  *observability.Metrics
	hooks    []domain.LifecycleHooks
	catalog  *definition.Catalog
	engines  map[string]*arbor.Engine
	docs     map[string]*definition.Document
	building map[string]bool
	closers  []func() error
}

// Open wires logging, persistence, metrics and tools from opts.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Options:  opts,
		Logger:   logging.New(level),
		Registry: prometheus.NewRegistry(),
		Loader:   file.NewLoader(opts.Dir),
		Tools:    tools.NewRegistry(),
		engines:  make(map[string]*arbor.Engine),
		docs:     make(map[string]*definition.Document),
		building: make(map[string]bool),
	}
	r.metrics = observability.NewMetrics(r.Registry)

	if err := r.openStore(ctx); err != nil {
		r.Close()
		return nil, err
	}

	cfg, err := process.LoadTools(opts.toolsPath())
	if err != nil {
		r.Close()
		return nil, err
	}
	process.NewRunner(process.WithRegistry(cfg), process.WithBaseDir(opts.Dir)).Install(r.Tools)
	r.Logger.Debug("Tools loaded", "path", opts.toolsPath(), "count", len(cfg))

	r.catalog = definition.NewCatalog(
		definition.WithTools(r.Tools),
		definition.WithSubgraphs(r.Engine),
	)
	return r, nil
}

func (r *Runtime) openStore(ctx context.Context) error {
	var (
		store  ports.CheckpointStore
		locker ports.DistributedLocker
	)
	if r.Options.RedisURL != "" {
		redisOpts, err := backend.ParseURL(r.Options.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := backend.NewClient(redisOpts)
		r.closers = append(r.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		prefix := r.Options.RedisPrefix
		if prefix == "" {
			prefix = DefaultRedisPrefix
		}
		store = redis.NewFromClient(client, redis.WithPrefix(prefix+"run:"))
		locker = redis.NewLocker(client, prefix)
		r.Logger.Debug("Using redis store", "addr", redisOpts.Addr, "prefix", prefix)
	} else {
		store = file.NewStore(r.Options.storeDir())
		r.Logger.Debug("Using file store", "dir", r.Options.storeDir())
	}

	var mws []middleware.Middleware
	if len(r.Options.MaskFields) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(r.Options.MaskFields))
	}
	key, err := r.Options.encryptionKey()
	if err != nil {
		return err
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	store = middleware.Chain(store, mws...)

	sessionOpts := []session.Option{session.WithLogger(r.Logger)}
	if locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(locker))
	}
	r.Sessions = session.NewManager(store, sessionOpts...)
	return nil
}

// AddHooks registers hooks on every engine built afterwards.
func (r *Runtime) AddHooks(hooks domain.LifecycleHooks) {
	r.hooks = append(r.hooks, hooks)
}

// Engine builds (once) the engine of the definition id. Subgraph nodes
// resolve their child graphs through the same runtime.
func (r *Runtime) Engine(id string) (*arbor.Engine, error) {
	if eng, ok := r.engines[id]; ok {
		return eng, nil
	}
	if r.building[id] {
		return nil, fmt.Errorf("graph %s includes itself as a subgraph", id)
	}
	r.building[id] = true
	defer delete(r.building, id)

	doc, g, err := r.catalog.Load(r.Loader, id)
	if err != nil {
		return nil, err
	}
	for _, w := range g.Warnings() {
		r.Logger.Warn("Graph warning", "graph", id, "warning", w)
	}

	opts := []arbor.Option{
		arbor.WithLogger(r.Logger),
		arbor.WithSessionManager(r.Sessions),
		arbor.WithMetrics(r.metrics),
		arbor.WithLifecycleHooks(observability.LogHooks(r.Logger)),
	}
	for _, h := range r.hooks {
		opts = append(opts, arbor.WithLifecycleHooks(h))
	}
	if r.Options.RecursionLimit > 0 {
		opts = append(opts, arbor.WithRecursionLimit(r.Options.RecursionLimit))
	}
	if r.Options.Timeout > 0 {
		opts = append(opts, arbor.WithTimeout(r.Options.Timeout))
	}

	eng, err := arbor.New(g, opts...)
	if err != nil {
		return nil, err
	}
	r.engines[id] = eng
	r.docs[id] = doc
	return eng, nil
}

// Graph returns the engine of id guarded by the declared inputs of its
// definition.
func (r *Runtime) Graph(id string) (*GuardedEngine, error) {
	eng, err := r.Engine(id)
	if err != nil {
		return nil, err
	}
	inputs, err := r.docs[id].InputSchema()
	if err != nil {
		return nil, err
	}
	return &GuardedEngine{Engine: eng, Inputs: inputs}, nil
}

// ResolveGraphID picks the graph to use: the argument if given, else the
// first of main, index or the directory name that exists, else the only
// definition in the directory.
func (r *Runtime) ResolveGraphID(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	ids, err := r.Loader.ListGraphs()
	if err != nil {
		return "", err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	candidates := []string{"main", "index"}
	if abs, err := filepath.Abs(r.Options.Dir); err == nil {
		candidates = append(candidates, filepath.Base(abs))
	}
	for _, c := range candidates {
		if known[c] {
			return c, nil
		}
	}
	if len(ids) == 1 {
		return ids[0], nil
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no graph definitions found in %s", r.Options.Dir)
	}
	return "", fmt.Errorf("several graphs found in %s, name one of %v", r.Options.Dir, ids)
}

// Close releases the store connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// GuardedEngine rejects run input that does not match the declared inputs.
type GuardedEngine struct {
	*arbor.Engine
	Inputs schema.Schema
}

var _ ports.Engine = (*GuardedEngine)(nil)

// Run implements ports.Engine.
func (g *GuardedEngine) Run(ctx context.Context, runID string, input domain.State) (*domain.Result, error) {
	if err := g.Inputs.Validate(input); err != nil {
		return nil, fmt.Errorf("invalid input of graph %s: %w", g.GraphID(), err)
	}
	return g.Engine.Run(ctx, runID, input)
}

// ReadInput decodes a JSON or YAML object from a literal or, with a
// leading "@", from a file.
func ReadInput(raw string) (domain.State, error) {
	if raw == "" {
		return domain.State{}, nil
	}
	data := []byte(raw)
	if raw[0] == '@' {
		var err error
		if data, err = os.ReadFile(raw[1:]); err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
	}
	state := domain.State{}
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return state, nil
}
