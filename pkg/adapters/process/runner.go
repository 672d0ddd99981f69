package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/tools"
)

// ArgEnvPrefix prefixes the environment variables carrying tool arguments.
const ArgEnvPrefix = "ARBOR_ARG_"

// DefaultGracePeriod is how long a cancelled process may take to exit after
// the interrupt signal before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Runner executes allow-listed local processes as tools.
// Tool arguments never become command-line flags: they are passed as
// ARBOR_ARG_<NAME> environment variables.
type Runner struct {
	registry map[string]ToolConfig
	baseDir  string
	grace    time.Duration
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(cfgs map[string]ToolConfig) RunnerOption {
	return func(r *Runner) {
		for name, cfg := range cfgs {
			cfg.Name = name
			r.registry[name] = cfg
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets the delay between the interrupt signal and the kill.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ToolConfig),
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = ToolConfig{Name: name, Command: command, Args: args}
}

// Lookup implements tools.Lookup.
func (r *Runner) Lookup(name string) (tools.Func, bool) {
	if _, ok := r.registry[name]; !ok {
		return nil, false
	}
	return func(ctx context.Context, args map[string]any) (any, error) {
		return r.Execute(ctx, name, args)
	}, true
}

// Tools lists the registered commands as tool descriptions, sorted by name.
func (r *Runner) Tools() []domain.Tool {
	out := make([]domain.Tool, 0, len(r.registry))
	for _, cfg := range r.registry {
		out = append(out, domain.Tool{Name: cfg.Name, Description: cfg.Description, Parameters: cfg.Parameters})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Install registers every command of the runner in reg.
func (r *Runner) Install(reg *tools.Registry) {
	for _, tool := range r.Tools() {
		fn, _ := r.Lookup(tool.Name)
		reg.RegisterTool(tool, fn)
	}
}

// Execute runs the named command. Output that parses as a JSON object or
// array is returned decoded; anything else is returned as trimmed text.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	cfg, ok := r.registry[name]
	if !ok {
		return nil, &domain.ToolNotFoundError{Name: name}
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = r.baseDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.grace

	env := cmd.Environ()
	for k, v := range cfg.Environment {
		env = append(env, k+"="+v)
	}
	cmd.Env = append(env, argEnv(args)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("execution failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	trimmed := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded, nil
		}
	}
	return trimmed, nil
}

// argEnv renders arguments as sorted KEY=value pairs.
// Scalars are formatted directly, structured values as JSON.
func argEnv(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		var val string
		switch v := args[k].(type) {
		case nil:
		case string, bool, int, int64, float64:
			val = fmt.Sprintf("%v", v)
		default:
			if data, err := json.Marshal(v); err == nil {
				val = string(data)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, ArgEnvPrefix+envKey(k)+"="+val)
	}
	return env
}

func envKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
