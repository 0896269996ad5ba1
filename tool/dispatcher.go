package tool

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Logger *slog.Logger
	// Runner launches external programs. Defaults to ExecRunner.
	Runner ProcessRunner
	// NewID generates invocation ids. Defaults to uuid.NewString.
	NewID func() string
}

// Dispatcher validates parameters and runs a tool with its strategy.
// It holds no per-invocation state and may be shared.
type Dispatcher struct {
	logger *slog.Logger
	runner ProcessRunner
	newID  func() string
}

// NewDispatcher creates a dispatcher from cfg.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Dispatcher{logger: logger, runner: runner, newID: newID}
}

// Runner returns the process runner used for external tools.
func (d *Dispatcher) Runner() ProcessRunner {
	return d.runner
}

// invocation tracks one Execute call through the state machine.
type invocation struct {
	d      *Dispatcher
	desc   Descriptor
	id     string
	state  State
	start  time.Time
	logger *slog.Logger
}

func (inv *invocation) transition(to State) {
	from := inv.state
	inv.state = to
	inv.logger.Debug("invocation state changed", "from", from, "to", to)
	emitTransitionObservation(TransitionObservation{
		ToolID:       inv.desc.ID(),
		InvocationID: inv.id,
		From:         from,
		To:           to,
	})
}

// Execute runs desc once with the raw values collected by a presentation
// adapter. It blocks until the tool finishes and never panics; every failure
// is reported in the returned Outcome.
//
// workspace is handed to in-process tools by reference. The caller must not
// run two invocations against the same workspace at the same time.
func (d *Dispatcher) Execute(ctx context.Context, desc Descriptor, raw map[string]string, workspace any) Outcome {
	inv := &invocation{
		d:     d,
		desc:  desc,
		id:    d.newID(),
		state: StatePending,
		start: time.Now(),
	}
	inv.logger = d.logger.With("tool", desc.ID(), "invocation", inv.id)

	if desc.IsZero() {
		return inv.fail(errorf(KindNotFound, "", "tool descriptor is empty"), nil, nil)
	}

	inv.transition(StateValidating)
	params, paramErrors, err := validateAll(desc, raw)
	if err != nil {
		inv.logger.Info("parameters rejected", "reason", KindOf(err), "fields", len(paramErrors))
		return inv.fail(err, paramErrors, nil)
	}

	inv.transition(StateExecuting)
	var (
		result   Result
		messages []string
	)
	switch s := desc.Strategy().(type) {
	case InProcess:
		result, messages, err = inv.runInProcess(ctx, s, params, workspace)
	case ExternalProcess:
		result, err = inv.runExternal(ctx, s, params)
	default:
		err = errorf(KindToolRuntime, "", "unsupported strategy %T", s)
	}
	if err != nil {
		return inv.fail(err, nil, messages)
	}
	return inv.succeed(result, messages)
}

// validateAll checks every raw value in declaration order. All field errors
// are collected; the first one is returned as the invocation error.
func validateAll(desc Descriptor, raw map[string]string) (Resolved, map[string]string, error) {
	params := make(Resolved, len(desc.params))
	fieldErrors := map[string]string{}
	var first error

	record := func(name string, err error) {
		fieldErrors[name] = detailOf(err)
		if first == nil {
			first = err
		}
	}

	for _, spec := range desc.params {
		value, err := spec.Validate(raw[spec.Name])
		if err != nil {
			record(spec.Name, err)
			continue
		}
		params[spec.Name] = value
	}
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		if _, declared := desc.Param(name); !declared {
			record(name, errorf(KindValidation, name, "unknown parameter"))
		}
	}
	if first == nil && desc.check != nil {
		problems := desc.check(params)
		for _, spec := range desc.params {
			if msg, bad := problems[spec.Name]; bad {
				record(spec.Name, errorf(KindValidation, spec.Name, "%s", msg))
			}
		}
		for _, name := range slices.Sorted(maps.Keys(problems)) {
			if _, seen := fieldErrors[name]; !seen {
				record(name, errorf(KindValidation, name, "%s", problems[name]))
			}
		}
	}
	if first != nil {
		return nil, fieldErrors, first
	}
	return params, nil, nil
}

func (inv *invocation) runInProcess(ctx context.Context, s InProcess, params Resolved, workspace any) (result Result, messages []string, err error) {
	recorder := newMessageRecorder(inv.logger.Handler())
	defer func() {
		messages = recorder.Messages()
		if recovered := recover(); recovered != nil {
			inv.logger.Error("tool panicked", "panic", recovered, "stack", string(debug.Stack()))
			result = Result{}
			err = errorf(KindToolRuntime, "", "tool panicked: %v", recovered)
		}
	}()

	result, err = s.Run(ctx, Call{
		Params:    params,
		Workspace: workspace,
		Logger:    slog.New(recorder),
	})
	if err != nil {
		return Result{}, nil, newError(KindToolRuntime, "", detailOf(err), err)
	}
	return result, nil, nil
}

func (inv *invocation) runExternal(ctx context.Context, s ExternalProcess, params Resolved) (Result, error) {
	cmd, err := s.command(params)
	if err != nil {
		return Result{}, err
	}
	inv.logger.Debug("running external command", "command", cmd.String())

	out, err := inv.d.runner.Run(ctx, cmd)
	if err != nil {
		return Result{}, newError(kindOrDefault(err, KindExternalProcess), "", detailOf(err), err)
	}
	if out.ExitCode != 0 {
		detail := strings.TrimSpace(string(out.Stderr))
		if detail == "" {
			detail = "exit status " + strconv.Itoa(out.ExitCode)
		}
		return Result{}, errorf(KindExternalProcess, "", "%s", detail)
	}
	return parseOutput(s.Parse, out)
}

func parseOutput(parse OutputParser, out ProcessOutput) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{}
			err = errorf(KindOutputParse, "", "output parser panicked: %v", recovered)
		}
	}()
	result, err = parse(out)
	if err != nil {
		return Result{}, newError(KindOutputParse, "", detailOf(err), err)
	}
	return result, nil
}

func (inv *invocation) fail(err error, paramErrors map[string]string, messages []string) Outcome {
	reason := kindOrDefault(err, KindToolRuntime)
	inv.transition(StateFailed)
	outcome := Outcome{
		InvocationID: inv.id,
		ToolID:       inv.desc.ID(),
		State:        StateFailed,
		Messages:     messages,
		Reason:       reason,
		Detail:       detailOf(err),
		ParamErrors:  paramErrors,
		Duration:     time.Since(inv.start),
	}
	inv.logger.Info("tool failed", "reason", reason, "detail", outcome.Detail, "duration", outcome.Duration)
	inv.observe(outcome)
	return outcome
}

func (inv *invocation) succeed(result Result, messages []string) Outcome {
	inv.transition(StateSucceeded)
	outcome := Outcome{
		InvocationID: inv.id,
		ToolID:       inv.desc.ID(),
		State:        StateSucceeded,
		Artifacts:    slices.Clone(result.Artifacts),
		Messages:     append(messages, result.Messages...),
		Duration:     time.Since(inv.start),
	}
	inv.logger.Info("tool succeeded", "artifacts", len(outcome.Artifacts), "duration", outcome.Duration)
	inv.observe(outcome)
	return outcome
}

func (inv *invocation) observe(outcome Outcome) {
	emitInvokeObservation(InvokeObservation{
		ToolID:       outcome.ToolID,
		InvocationID: outcome.InvocationID,
		Origin:       inv.desc.Origin(),
		DurationMS:   outcome.Duration.Milliseconds(),
		Success:      outcome.Succeeded(),
		Reason:       outcome.Reason,
	})
}

// String implements fmt.Stringer for log output.
func (o Outcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("%s succeeded (%d artifacts)", o.ToolID, len(o.Artifacts))
	}
	return fmt.Sprintf("%s failed: %s: %s", o.ToolID, o.Reason, o.Detail)
}
