package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aquaveo/xmstool-runner/tool"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <tool-id>",
		Short: "Run a tool against the workspace",
		Long: "Run a tool with --set name=value parameters. In-process tools work on the " +
			"workspace, which is saved when they succeed.",
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	cmd.Flags().StringArray("set", nil, "Set a parameter as name=value (repeatable)")
	cmd.Flags().Bool("json", false, "Print the outcome as JSON")
	cmd.Flags().Duration("timeout", 0, "Cancel the tool after this long (0 means no limit)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	d, err := findTool(env, args[0])
	if err != nil {
		return err
	}
	sets, _ := cmd.Flags().GetStringArray("set")
	raw, err := parseSets(sets)
	if err != nil {
		return err
	}

	store, err := env.openWorkspace()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	project, err := store.Load(cmd.Context())
	if err != nil {
		return exitError(exitStartup, "loading workspace: %v", err)
	}

	// Ctrl-C cancels the tool; an external process is killed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome := env.dispatcher.Execute(ctx, d, raw, project)
	if outcome.Succeeded() && d.Origin() == tool.OriginInProcess {
		if err := store.Save(cmd.Context(), project); err != nil {
			return exitError(exitStartup, "saving workspace: %v", err)
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return exitError(exitUsage, "encoding outcome: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		writeOutcome(cmd.OutOrStdout(), outcome)
	}

	switch {
	case outcome.Succeeded():
		return nil
	case outcome.Rejected():
		return exitError(exitValidation, "%s", outcome)
	default:
		return exitError(exitToolFailed, "%s", outcome)
	}
}

// parseSets turns repeated name=value flags into raw parameter values.
func parseSets(sets []string) (map[string]string, error) {
	raw := make(map[string]string, len(sets))
	for _, set := range sets {
		name, value, ok := strings.Cut(set, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, exitError(exitUsage, "invalid --set %q: expected name=value", set)
		}
		raw[name] = value
	}
	return raw, nil
}

func writeOutcome(w io.Writer, outcome tool.Outcome) {
	for _, msg := range outcome.Messages {
		printf(w, "%s\n", msg)
	}
	for _, a := range outcome.Artifacts {
		printf(w, "%s\n", describeArtifact(a))
	}
	for _, name := range slices.Sorted(maps.Keys(outcome.ParamErrors)) {
		printf(w, "  %s: %s\n", name, outcome.ParamErrors[name])
	}
	if outcome.Succeeded() {
		printf(w, "%s succeeded in %s\n", outcome.ToolID, outcome.Duration.Round(time.Millisecond))
	}
}

func describeArtifact(a tool.Artifact) string {
	switch a.Kind {
	case tool.ArtifactFile:
		if info, err := os.Stat(a.Path); err == nil {
			return fmt.Sprintf("file %s: %s (%s)", a.Name, a.Path, humanize.Bytes(uint64(info.Size())))
		}
		return fmt.Sprintf("file %s: %s", a.Name, a.Path)
	case tool.ArtifactGrid, tool.ArtifactDataset:
		if a.Value != nil {
			return fmt.Sprintf("%s %q [%s] %v", a.Kind, a.Name, a.Ref, a.Value)
		}
		return fmt.Sprintf("%s %q [%s]", a.Kind, a.Name, a.Ref)
	default:
		return fmt.Sprintf("%s = %v", a.Name, a.Value)
	}
}
