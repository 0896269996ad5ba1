package tool

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Command is a fully substituted external invocation.
type Command struct {
	Path    string
	Args    []string
	Stdin   string
	Env     map[string]string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// ProcessRunner launches external programs synchronously.
//
// A program that runs and exits non-zero is not an error: the exit code is
// reported in ProcessOutput. Errors mean the program could not be started,
// timed out or was canceled.
type ProcessRunner interface {
	Run(ctx context.Context, cmd Command) (ProcessOutput, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts cmd, feeds Stdin, and waits for it to exit.
func (ExecRunner) Run(ctx context.Context, cmd Command) (ProcessOutput, error) {
	if strings.TrimSpace(cmd.Path) == "" {
		return ProcessOutput{}, errorf(KindExternalProcess, "", "command is empty")
	}
	execCtx, cancel := withProcessTimeout(ctx, cmd.Timeout)
	defer cancel()

	// #nosec G204 -- program and arguments come from registered tool descriptors.
	proc := exec.CommandContext(execCtx, cmd.Path, cmd.Args...)
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), flattenEnv(cmd.Env)...)
	}
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	if ctxErr := execCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return ProcessOutput{}, newError(KindExternalProcess, "", cmd.Path+" timed out after "+cmd.Timeout.String(), ctxErr)
		}
		return ProcessOutput{}, newError(KindExternalProcess, "", cmd.Path+" was canceled", ctxErr)
	}

	out := ProcessOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return ProcessOutput{}, newError(KindExternalProcess, "", "cannot start "+cmd.Path, err)
	}
}

func withProcessTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}

// CommandPath joins program onto dir when dir is set. A bare program name is
// otherwise left for PATH lookup.
func CommandPath(dir, program string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(program) {
		return program
	}
	return filepath.Join(dir, program)
}

// command substitutes resolved values into the strategy templates.
func (s ExternalProcess) command(params Resolved) (Command, error) {
	tokens := make([]string, 0, len(s.Command))
	for _, token := range s.Command {
		if names := placeholders(token); len(names) > 0 && strings.ContainsAny(token, " \t") {
			if !slices.ContainsFunc(names, func(name string) bool { return !params.Has(name) }) {
				for _, part := range strings.Fields(token) {
					tokens = append(tokens, substitute(part, params))
				}
			}
			continue
		}
		if name, whole := wholePlaceholder(token); whole && !params.Has(name) {
			continue
		}
		tokens = append(tokens, substitute(token, params))
	}

	var env map[string]string
	if len(s.Env) > 0 {
		env = make(map[string]string, len(s.Env))
		for key, value := range s.Env {
			env[key] = substitute(value, params)
		}
	}

	if len(tokens) == 0 || strings.TrimSpace(tokens[0]) == "" {
		return Command{}, errorf(KindExternalProcess, "", "command resolves to an empty program")
	}
	program := tokens[0]
	if s.ToolDirParam != "" {
		program = CommandPath(params.String(s.ToolDirParam), program)
	}
	return Command{
		Path:    program,
		Args:    tokens[1:],
		Stdin:   substitute(s.Stdin, params),
		Env:     env,
		Timeout: s.Timeout,
	}, nil
}

func wholePlaceholder(token string) (string, bool) {
	m := placeholderPattern.FindStringSubmatchIndex(token)
	if m == nil || m[0] != 0 || m[1] != len(token) {
		return "", false
	}
	return token[m[2]:m[3]], true
}

func substitute(template string, params Resolved) string {
	if template == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		return params.String(match[1 : len(match)-1])
	})
}
