package definition

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/aretw0/arbor/pkg/retrieval"
	"github.com/aretw0/arbor/pkg/tools"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mitchellh/mapstructure"
)

// Env holds the collaborators node factories draw on.
type Env struct {
	Model     llm.Client
	Tools     tools.Lookup
	Retriever retrieval.Backend
	// Subgraph resolves the engine of a nested graph by ID.
	Subgraph func(id string) (*arbor.Engine, error)
}

// Factory builds a node from the with block of its declaration.
type Factory func(env Env, with map[string]any) (graph.Node, error)

// Catalog maps node types to factories.
type Catalog struct {
	factories map[string]Factory
	env       Env
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithModel sets the client of "llm" nodes.
func WithModel(c llm.Client) CatalogOption {
	return func(cat *Catalog) { cat.env.Model = c }
}

// WithTools sets the tools of "tools" nodes.
func WithTools(l tools.Lookup) CatalogOption {
	return func(cat *Catalog) { cat.env.Tools = l }
}

// WithRetriever sets the backend of "retrieve" nodes.
func WithRetriever(b retrieval.Backend) CatalogOption {
	return func(cat *Catalog) { cat.env.Retriever = b }
}

// WithSubgraphs sets the resolver of "subgraph" nodes.
func WithSubgraphs(fn func(id string) (*arbor.Engine, error)) CatalogOption {
	return func(cat *Catalog) { cat.env.Subgraph = fn }
}

// NewCatalog creates a catalog holding the built-in node types.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{factories: map[string]Factory{
		"noop":           noopFactory,
		"set":            setFactory,
		"compute":        computeFactory,
		"append_message": appendMessageFactory,
		"interrupt":      interruptFactory,
		"llm":            llmFactory,
		"tools":          toolsFactory,
		"retrieve":       retrieveFactory,
		"subgraph":       subgraphFactory,
	}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a node type.
func (c *Catalog) Register(typ string, f Factory) {
	c.factories[typ] = f
}

// Types lists the known node types in lexical order.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.factories))
	for t := range c.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Decode copies a with block into a config struct. Unknown keys are errors;
// durations may be written as strings such as "5s".
func Decode(with map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	return dec.Decode(with)
}

func noopFactory(Env, map[string]any) (graph.Node, error) {
	return graph.NodeFunc(func(context.Context, domain.State) (domain.Update, error) {
		return nil, nil
	}), nil
}

type setConfig struct {
	Values map[string]any `mapstructure:"values"`
}

func setFactory(_ Env, with map[string]any) (graph.Node, error) {
	var cfg setConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	return graph.NodeFunc(func(context.Context, domain.State) (domain.Update, error) {
		update := make(domain.Update, len(cfg.Values))
		for k, v := range cfg.Values {
			update[k] = v
		}
		return update, nil
	}), nil
}

type computeConfig struct {
	// Set maps fields to expressions over the current state. Missing
	// fields evaluate to nil, so `(attempts ?? 0) + 1` counts from zero.
	Set map[string]string `mapstructure:"set"`
}

func computeFactory(_ Env, with map[string]any) (graph.Node, error) {
	var cfg computeConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Set) == 0 {
		return nil, fmt.Errorf("compute: set is empty")
	}
	programs := make(map[string]*vm.Program, len(cfg.Set))
	for field, code := range cfg.Set {
		p, err := expr.Compile(code, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compute %s: %w", field, err)
		}
		programs[field] = p
	}
	return graph.NodeFunc(func(_ context.Context, state domain.State) (domain.Update, error) {
		env := map[string]any(state)
		update := make(domain.Update, len(programs))
		for field, p := range programs {
			out, err := expr.Run(p, env)
			if err != nil {
				return nil, fmt.Errorf("compute %s: %w", field, err)
			}
			update[field] = out
		}
		return update, nil
	}), nil
}

type appendMessageConfig struct {
	Role    string `mapstructure:"role"`
	Content string `mapstructure:"content"`
	// From reads the content from a string field instead.
	From string `mapstructure:"from"`
}

func appendMessageFactory(_ Env, with map[string]any) (graph.Node, error) {
	cfg := appendMessageConfig{Role: string(domain.RoleAssistant)}
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	return graph.NodeFunc(func(_ context.Context, state domain.State) (domain.Update, error) {
		content := cfg.Content
		if cfg.From != "" {
			content = state.String(cfg.From)
		}
		msg := domain.Message{Role: domain.Role(cfg.Role), Content: content}
		return domain.Update{domain.FieldMessages: []domain.Message{msg}}, nil
	}), nil
}

type interruptConfig struct {
	Payload any `mapstructure:"payload"`
}

// interruptFactory suspends the run on first visit. The resume input is
// merged by the engine before the node runs again and passes.
func interruptFactory(_ Env, with map[string]any) (graph.Node, error) {
	var cfg interruptConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	return graph.NodeFunc(func(ctx context.Context, _ domain.State) (domain.Update, error) {
		if graph.Resuming(ctx) {
			return nil, nil
		}
		return nil, graph.Interrupt(cfg.Payload)
	}), nil
}

type llmConfig struct {
	System      string `mapstructure:"system"`
	Name        string `mapstructure:"name"`
	WithContext bool   `mapstructure:"with_context"`
}

func llmFactory(env Env, with map[string]any) (graph.Node, error) {
	if env.Model == nil {
		return nil, fmt.Errorf("no model client configured")
	}
	var cfg llmConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	var opts []llm.Option
	if cfg.System != "" {
		opts = append(opts, llm.WithSystemPrompt(cfg.System))
	}
	if cfg.Name != "" {
		opts = append(opts, llm.WithName(cfg.Name))
	}
	if cfg.WithContext {
		opts = append(opts, llm.WithRetrievedContext())
	}
	return llm.Node(env.Model, opts...), nil
}

type toolsConfig struct {
	Parallel int           `mapstructure:"parallel"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func toolsFactory(env Env, with map[string]any) (graph.Node, error) {
	if env.Tools == nil {
		return nil, fmt.Errorf("no tools configured")
	}
	var cfg toolsConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	var opts []tools.Option
	if cfg.Parallel > 0 {
		opts = append(opts, tools.WithParallelCalls(cfg.Parallel))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, tools.WithCallTimeout(cfg.Timeout))
	}
	return tools.Node(env.Tools, opts...), nil
}

type retrieveConfig struct {
	K          int    `mapstructure:"k"`
	QueryField string `mapstructure:"query_field"`
}

func retrieveFactory(env Env, with map[string]any) (graph.Node, error) {
	if env.Retriever == nil {
		return nil, fmt.Errorf("no retrieval backend configured")
	}
	var cfg retrieveConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	var opts []retrieval.Option
	if cfg.QueryField != "" {
		opts = append(opts, retrieval.WithQueryField(cfg.QueryField))
	}
	return retrieval.Node(env.Retriever, cfg.K, opts...), nil
}

type subgraphConfig struct {
	Graph        string   `mapstructure:"graph"`
	Inputs       []string `mapstructure:"inputs"`
	Outputs      []string `mapstructure:"outputs"`
	ResumeFields []string `mapstructure:"resume_fields"`
}

func subgraphFactory(env Env, with map[string]any) (graph.Node, error) {
	if env.Subgraph == nil {
		return nil, fmt.Errorf("no subgraph resolver configured")
	}
	var cfg subgraphConfig
	if err := Decode(with, &cfg); err != nil {
		return nil, err
	}
	if cfg.Graph == "" {
		return nil, fmt.Errorf("subgraph: graph is required")
	}
	child, err := env.Subgraph(cfg.Graph)
	if err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", cfg.Graph, err)
	}
	var opts []arbor.SubgraphOption
	if len(cfg.Inputs) > 0 {
		opts = append(opts, arbor.WithInputs(cfg.Inputs...))
	}
	if len(cfg.Outputs) > 0 {
		opts = append(opts, arbor.WithOutputs(cfg.Outputs...))
	}
	if len(cfg.ResumeFields) > 0 {
		opts = append(opts, arbor.WithResumeFields(cfg.ResumeFields...))
	}
	return arbor.Subgraph(child, opts...), nil
}
