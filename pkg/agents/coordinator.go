package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

// DefaultMaxTurns bounds a coordination when WithMaxTurns is not given.
const DefaultMaxTurns = 50

var (
	// ErrTurnLimit is returned when the coordination exceeds its turn budget.
	ErrTurnLimit = errors.New("agent turn limit exceeded")
	// ErrUnknownAgent is returned for envelopes or policy decisions naming no registered agent.
	ErrUnknownAgent = errors.New("unknown agent")
)

// Runner executes one agent's graph. *runtime.Engine and *arbor.Engine satisfy it.
type Runner interface {
	Run(ctx context.Context, runID string, input domain.State) (*domain.Result, error)
	Resume(ctx context.Context, cp *domain.Checkpoint, input domain.Update) (*domain.Result, error)
}

// Agent is a named participant of a coordination.
type Agent struct {
	Name   string
	Runner Runner
}

// Reason explains why a coordination stopped.
type Reason string

const (
	ReasonFinal     Reason = "final"
	ReasonExhausted Reason = "exhausted"
	ReasonTurnLimit Reason = "turn_limit"
	ReasonFailed    Reason = "failed"
)

// Turn records one scheduled agent run.
type Turn struct {
	Index    int               `json:"index"`
	Agent    string            `json:"agent"`
	Received []domain.Envelope `json:"received,omitempty"`
	Sent     []domain.Envelope `json:"sent,omitempty"`
	Status   domain.RunStatus  `json:"status"`
}

// Outcome is the result of a coordination. It is returned alongside errors too.
type Outcome struct {
	RunID  string
	Reason Reason
	// Final is the envelope that ended the coordination, if any.
	Final *domain.Envelope
	Turns []Turn
	// States holds each agent's state after its last turn.
	States map[string]domain.State
	// Pending lists the envelopes never delivered.
	Pending []domain.Envelope
	// Suspended maps agents whose last run suspended to their checkpoints.
	Suspended map[string]*domain.Checkpoint
}

// Coordinator schedules turns between agents. It holds configuration only,
// so concurrent Run calls are independent.
type Coordinator struct {
	agents     []Agent
	index      map[string]int
	policy     TurnPolicy
	maxTurns   int
	finisher   string
	aggregator string
	deliver    bool
	logger     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the turn policy. Defaults to RoundRobin.
func WithPolicy(p TurnPolicy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithMaxTurns bounds the number of turns.
func WithMaxTurns(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

// WithFinisher designates the only agent whose Final envelope ends the coordination.
func WithFinisher(name string) Option {
	return func(c *Coordinator) {
		c.finisher = name
	}
}

// WithAggregator designates the recipient of envelopes posted without one.
// Without an aggregator such envelopes are broadcast to every other agent.
func WithAggregator(name string) Option {
	return func(c *Coordinator) {
		c.aggregator = name
	}
}

// WithoutConversation stops the coordinator from appending received
// envelopes to the agent's messages field; they only appear in its mailbox.
func WithoutConversation() Option {
	return func(c *Coordinator) {
		c.deliver = false
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a coordinator over agents, in turn order.
func New(agents []Agent, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		index:    make(map[string]int, len(agents)),
		policy:   RoundRobin(),
		maxTurns: DefaultMaxTurns,
		deliver:  true,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var problems []string
	if len(agents) == 0 {
		problems = append(problems, "coordinator needs at least one agent")
	}
	for i, a := range agents {
		switch {
		case a.Name == "":
			problems = append(problems, fmt.Sprintf("agent #%d has no name", i))
		case a.Runner == nil:
			problems = append(problems, fmt.Sprintf("agent %q has no runner", a.Name))
		}
		if _, dup := c.index[a.Name]; dup {
			problems = append(problems, fmt.Sprintf("agent %q registered twice", a.Name))
		}
		c.index[a.Name] = i
	}
	for _, role := range []string{c.finisher, c.aggregator} {
		if _, ok := c.index[role]; role != "" && !ok {
			problems = append(problems, fmt.Sprintf("agent %q is not registered", role))
		}
	}
	if len(problems) > 0 {
		return nil, &domain.DefinitionError{Problems: problems}
	}

	c.agents = append([]Agent(nil), agents...)
	return c, nil
}

// Agents returns the agent names in turn order.
func (c *Coordinator) Agents() []string {
	names := make([]string, len(c.agents))
	for i, a := range c.agents {
		names[i] = a.Name
	}
	return names
}

// Run coordinates the agents until termination. seed envelopes are posted
// before the first turn. An empty runID is replaced by a random one.
func (c *Coordinator) Run(ctx context.Context, runID string, seed ...domain.Envelope) (*Outcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	co := &coordination{
		Coordinator: c,
		out: &Outcome{
			RunID:     runID,
			States:    make(map[string]domain.State, len(c.agents)),
			Suspended: make(map[string]*domain.Checkpoint),
		},
		logger: c.logger.With("coordination", runID),
	}
	for _, a := range c.agents {
		co.out.States[a.Name] = domain.State{}
	}

	for _, env := range seed {
		if err := co.post("", env); err != nil {
			return co.stop(ReasonFailed), err
		}
	}

	err := co.loop(ctx)
	co.out.Pending = co.mailbox.Pending()
	return co.out, err
}

// coordination is the mutable state of one Run.
type coordination struct {
	*Coordinator
	mailbox Mailbox
	out     *Outcome
	logger  *slog.Logger
}

func (co *coordination) loop(ctx context.Context) error {
	last := ""
	for turn := 0; ; turn++ {
		if err := ctx.Err(); err != nil {
			co.out.Reason = ReasonFailed
			return fmt.Errorf("coordination cancelled: %w", err)
		}

		name, ok := co.policy.Next(View{
			Agents:  co.Agents(),
			Turn:    turn,
			Last:    last,
			Pending: co.mailbox.Pending(),
		})
		if !ok {
			co.out.Reason = ReasonExhausted
			co.logger.Debug("turn policy exhausted", "turns", turn)
			return nil
		}
		if _, known := co.index[name]; !known {
			co.out.Reason = ReasonFailed
			return fmt.Errorf("turn policy chose %w %q", ErrUnknownAgent, name)
		}
		if turn >= co.maxTurns {
			co.out.Reason = ReasonTurnLimit
			return fmt.Errorf("%w: %d", ErrTurnLimit, co.maxTurns)
		}

		final, err := co.turn(ctx, turn, name)
		if err != nil {
			co.out.Reason = ReasonFailed
			return fmt.Errorf("agent %q: %w", name, err)
		}
		if final != nil {
			co.out.Reason = ReasonFinal
			co.out.Final = final
			co.logger.Info("coordination finished", "agent", name, "turns", turn+1)
			return nil
		}
		last = name
	}
}

// turn runs one agent and posts its outbox. It returns the terminating envelope, if any.
func (co *coordination) turn(ctx context.Context, index int, name string) (*domain.Envelope, error) {
	agent := co.agents[co.index[name]]
	received := co.mailbox.Drain(name)
	co.logger.Debug("agent turn", "turn", index, "agent", name, "received", len(received))

	in := co.inbound(received)
	var res *domain.Result
	var err error
	if cp, suspended := co.out.Suspended[name]; suspended {
		res, err = agent.Runner.Resume(ctx, cp, in)
	} else {
		input := co.out.States[name].Clone()
		input[domain.FieldMailbox] = in[domain.FieldMailbox]
		input[domain.FieldOutbox] = in[domain.FieldOutbox]
		if msgs, ok := in[domain.FieldMessages].([]domain.Message); ok {
			history := input.Messages()
			merged := make([]domain.Message, 0, len(history)+len(msgs))
			input[domain.FieldMessages] = append(append(merged, history...), msgs...)
		}
		runID := fmt.Sprintf("%s/%s/%d", co.out.RunID, name, index)
		res, err = agent.Runner.Run(ctx, runID, input)
	}

	record := Turn{Index: index, Agent: name, Received: received}
	if res != nil {
		record.Status = res.Status
	}
	if err != nil {
		co.out.Turns = append(co.out.Turns, record)
		return nil, err
	}

	sent := append([]domain.Envelope(nil), res.State.Outbox()...)
	for i := range sent {
		if sent[i].From == "" {
			sent[i].From = name
		}
	}
	record.Sent = sent
	co.out.Turns = append(co.out.Turns, record)

	state := res.State.Clone()
	state[domain.FieldMailbox] = []domain.Envelope{}
	state[domain.FieldOutbox] = []domain.Envelope{}
	co.out.States[name] = state
	if res.Status == domain.StatusSuspended && res.Checkpoint != nil {
		// Delivered mail and posted envelopes must not be replayed on resume.
		cp := res.Checkpoint.Clone()
		cp.State[domain.FieldMailbox] = []domain.Envelope{}
		cp.State[domain.FieldOutbox] = []domain.Envelope{}
		co.out.Suspended[name] = cp
	} else {
		delete(co.out.Suspended, name)
	}

	var final *domain.Envelope
	for _, env := range sent {
		if err := co.post(name, env); err != nil {
			return nil, err
		}
		if env.Final && final == nil && (co.finisher == "" || co.finisher == name) {
			final = &env
		}
	}
	return final, nil
}

// inbound is the update delivering received envelopes to an agent.
// The mailbox field is replaced for the turn; the outbox starts empty.
func (co *coordination) inbound(received []domain.Envelope) domain.Update {
	update := domain.Update{
		domain.FieldMailbox: append([]domain.Envelope{}, received...),
		domain.FieldOutbox:  []domain.Envelope{},
	}
	if co.deliver && len(received) > 0 {
		msgs := make([]domain.Message, len(received))
		for i, env := range received {
			msgs[i] = env.Message
			if msgs[i].Name == "" {
				msgs[i].Name = env.From
			}
		}
		update[domain.FieldMessages] = msgs
	}
	return update
}

// post routes an envelope into the mailbox.
func (co *coordination) post(from string, env domain.Envelope) error {
	if env.From == "" {
		env.From = from
	}
	if env.To != "" {
		if _, ok := co.index[env.To]; !ok {
			return fmt.Errorf("envelope from %q: %w %q", env.From, ErrUnknownAgent, env.To)
		}
		co.mailbox.Post(env)
		return nil
	}
	if co.aggregator != "" && co.aggregator != env.From {
		env.To = co.aggregator
		co.mailbox.Post(env)
		return nil
	}
	// Final answers without a recipient need no delivery.
	if env.Final {
		return nil
	}
	for _, a := range co.agents {
		if a.Name == env.From {
			continue
		}
		copied := env
		copied.To = a.Name
		co.mailbox.Post(copied)
	}
	return nil
}

func (co *coordination) stop(reason Reason) *Outcome {
	co.out.Reason = reason
	co.out.Pending = co.mailbox.Pending()
	return co.out
}
