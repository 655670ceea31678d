package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/contractor-relay/internal/automation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/observability/metrics"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// DefaultFallbackRole receives messages nothing else understood.
const DefaultFallbackRole = "manager"

// Action is what the worker should do with a routed message.
type Action string

const (
	ActionIgnore  Action = "ignore"
	ActionReply   Action = "reply"
	ActionForward Action = "forward"
	ActionInvoke  Action = "invoke"
)

// Stage names the pipeline step that produced a directive.
type Stage string

const (
	StageStranger Stage = "stranger"
	StageFlow     Stage = "flow"
	StageCommand  Stage = "command"
	StageRule     Stage = "rule"
	StageFallback Stage = "fallback"
)

// Directive is the router's decision for one inbound message.
type Directive struct {
	Action Action
	Stage  Stage
	// Text is the reply for ActionReply and the forwarded text for ActionForward.
	Text     string
	Role     string
	Function string
	Params   map[string]string
	// Ack is an extra reply to the sender sent alongside a forward.
	Ack        string
	Contractor *directory.Contractor
	Reason     string
}

// RuleSource yields the current compiled automation rules.
type RuleSource interface {
	Rules(ctx context.Context) (*automation.RuleSet, error)
}

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Contractors  directory.Contractors
	States       StateStore
	Flows        []FlowHandler
	Executor     *CommandExecutor
	Rules        RuleSource
	FallbackRole string
	StateTTL     time.Duration
	Metrics      *metrics.RelayMetrics
	Logger       *logging.Logger
}

// Router classifies inbound text: stateful flow, then # command, then
// automation rules, then forward to the fallback role.
type Router struct {
	contractors  directory.Contractors
	states       StateStore
	flows        map[string]FlowHandler
	executor     *CommandExecutor
	rules        RuleSource
	fallbackRole string
	stateTTL     time.Duration
	metrics      *metrics.RelayMetrics
	logger       *logging.Logger
	now          func() time.Time
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Contractors == nil {
		panic("conversation: contractors cannot be nil")
	}
	if cfg.Executor == nil {
		panic("conversation: command executor cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	role := strings.TrimSpace(cfg.FallbackRole)
	if role == "" {
		role = DefaultFallbackRole
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	flows := make(map[string]FlowHandler, len(cfg.Flows))
	for _, f := range cfg.Flows {
		flows[f.Name()] = f
	}
	return &Router{
		contractors:  cfg.Contractors,
		states:       cfg.States,
		flows:        flows,
		executor:     cfg.Executor,
		rules:        cfg.Rules,
		fallbackRole: role,
		stateTTL:     ttl,
		metrics:      cfg.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// Route decides what to do with text from phone. An error means a
// collaborator was unavailable and the message should be retried.
func (r *Router) Route(ctx context.Context, phone, text string) (Directive, error) {
	d, err := r.route(ctx, messaging.NormalizePhone(phone), strings.TrimSpace(text))
	if err == nil {
		r.metrics.ObserveDirective(string(d.Stage), string(d.Action))
	}
	return d, err
}

func (r *Router) route(ctx context.Context, phone, text string) (Directive, error) {
	contractor, err := r.contractors.FindByPhone(ctx, phone)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return Directive{}, fmt.Errorf("conversation: contractor lookup: %w", err)
	}
	if contractor == nil || !contractor.Active {
		r.logger.Info("message from stranger ignored", "phone", messaging.MaskPhone(phone))
		return Directive{Action: ActionIgnore, Stage: StageStranger, Reason: "sender not registered"}, nil
	}
	log := r.logger.With("contractor_id", contractor.ID)

	// An active flow sees every message first. Flows decline what they do not
	// understand, so commands still work while a flow is pending.
	if d, ok := r.continueFlow(ctx, log, *contractor, phone, text); ok {
		return d, nil
	}

	if cmd, isCommand := ParseCommand(text); isCommand {
		reply := r.executor.Execute(ctx, *contractor, cmd)
		return Directive{Action: ActionReply, Stage: StageCommand, Text: reply, Contractor: contractor}, nil
	}

	if d, ok := r.matchRule(ctx, log, contractor, text); ok {
		return d, nil
	}

	return Directive{
		Action:     ActionForward,
		Stage:      StageFallback,
		Role:       r.fallbackRole,
		Text:       forwardText(contractor.Name, text),
		Contractor: contractor,
	}, nil
}

func (r *Router) continueFlow(ctx context.Context, log *logging.Logger, contractor directory.Contractor, phone, text string) (Directive, bool) {
	if r.states == nil {
		return Directive{}, false
	}
	state, err := r.states.Load(ctx, phone)
	if err != nil {
		log.Warn("conversation state unavailable", "error", err)
		return Directive{}, false
	}
	if state == nil || !state.Fresh(r.now(), r.stateTTL) {
		return Directive{}, false
	}
	handler, ok := r.flows[state.Flow]
	if !ok {
		log.Warn("no handler for conversation flow", "flow", state.Flow)
		return Directive{}, false
	}
	res, err := handler.Handle(ctx, contractor, *state, text)
	if err != nil {
		log.Error("conversation flow failed", "flow", state.Flow, "error", err)
		return Directive{}, false
	}
	if !res.Handled {
		return Directive{}, false
	}
	if res.Done {
		if err := r.states.Clear(ctx, phone); err != nil {
			log.Warn("failed to clear conversation state", "error", err)
		}
	}
	if res.ForwardRole != "" {
		return Directive{
			Action:     ActionForward,
			Stage:      StageFlow,
			Role:       res.ForwardRole,
			Text:       res.ForwardText,
			Ack:        res.Reply,
			Contractor: &contractor,
		}, true
	}
	return Directive{Action: ActionReply, Stage: StageFlow, Text: res.Reply, Contractor: &contractor}, true
}

func (r *Router) matchRule(ctx context.Context, log *logging.Logger, contractor *directory.Contractor, text string) (Directive, bool) {
	if r.rules == nil {
		return Directive{}, false
	}
	set, err := r.rules.Rules(ctx)
	if err != nil {
		log.Warn("automation rules unavailable", "error", err)
		return Directive{}, false
	}
	rule, ok := set.Match(text)
	if !ok {
		return Directive{}, false
	}
	d := Directive{Stage: StageRule, Contractor: contractor, Reason: fmt.Sprintf("rule %d", rule.ID)}
	switch rule.Action {
	case automation.ActionReply:
		d.Action = ActionReply
		d.Text = rule.ReplyText
	case automation.ActionForward:
		d.Action = ActionForward
		d.Role = rule.TargetRole
		d.Text = forwardText(contractor.Name, text)
	case automation.ActionInvokeFunction:
		d.Action = ActionInvoke
		d.Function = rule.FunctionName
		d.Params = map[string]string{"text": text}
	default:
		return Directive{}, false
	}
	return d, true
}

func forwardText(name, text string) string {
	return fmt.Sprintf("Mensagem de %s: %s", name, text)
}
