package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aquaveo/xmstool-runner/catalog"
	"github.com/Aquaveo/xmstool-runner/config"
	"github.com/Aquaveo/xmstool-runner/mesh"
	xotel "github.com/Aquaveo/xmstool-runner/otel"
	"github.com/Aquaveo/xmstool-runner/tool"
	"github.com/Aquaveo/xmstool-runner/toolbox"
)

// NewRootCmd creates the xmstool command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xmstool",
		Short: "Run mesh and geospatial tools",
		Long:  "xmstool runs the ADCIRC and GDAL toolbox, plus any external tools declared in a catalog file, against a shared mesh workspace.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to xmstool.yaml (default: ./xmstool.yaml, then ~/.xmstool/config.yaml)")
	flags.Bool("verbose", false, "Enable verbose/debug logging")
	flags.Bool("quiet", false, "Suppress all log output except errors")
	flags.String("catalog", "", "YAML file declaring external tools")
	flags.String("workspace", "", "Path to the SQLite workspace (default: ~/.xmstool/workspace.db)")
	flags.String("gdal-dir", "", "Directory of the GDAL command line tools")

	root.AddCommand(NewListCmd())
	root.AddCommand(NewInspectCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewWorkspaceCmd())
	root.AddCommand(NewServeCmd())
	return root
}

// environment is what every command needs after startup.
type environment struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	telemetry  *xotel.Providers
}

// processRunner launches external programs. Tests replace it.
var processRunner tool.ProcessRunner = tool.ExecRunner{}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.Resolve(explicit)
	if err != nil {
		return config.Config{}, exitError(exitStartup, "loading config: %v", err)
	}
	for flag, field := range map[string]*string{
		"catalog":   &cfg.Catalog,
		"workspace": &cfg.Workspace,
		"gdal-dir":  &cfg.GDALDir,
	} {
		if cmd.Flags().Changed(flag) {
			value, _ := cmd.Flags().GetString(flag)
			*field = strings.TrimSpace(value)
		}
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadEnvironment resolves config, builds the registry and installs the
// invocation observer. Registration failures abort with exitStartup.
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)

	groups := [][]catalog.Entry{toolbox.Entries(toolbox.Options{
		Runner:  processRunner,
		GDALDir: cfg.GDALDir,
	})}
	if cfg.Catalog != "" {
		entries, err := catalog.LoadFile(cfg.Catalog)
		if err != nil {
			return nil, exitError(exitStartup, "%v", err)
		}
		groups = append(groups, entries)
	}
	registry, err := catalog.Build(groups...)
	if err != nil {
		return nil, exitError(exitStartup, "%v", err)
	}
	logger.Debug("tools registered", "count", registry.Len(), "catalog", cfg.Catalog)

	telemetry, err := xotel.Setup(cmd.Context(), cfg.OTLPEndpoint, nil)
	if err != nil {
		return nil, exitError(exitStartup, "initializing telemetry: %v", err)
	}

	return &environment{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		dispatcher: tool.NewDispatcher(tool.DispatcherConfig{
			Logger: logger,
			Runner: processRunner,
		}),
		telemetry: telemetry,
	}, nil
}

func (e *environment) close() {
	if err := e.telemetry.Shutdown(context.Background()); err != nil {
		e.logger.Warn("telemetry shutdown", "error", err)
	}
}

func (e *environment) openWorkspace() (*mesh.SQLiteStore, error) {
	path := e.cfg.Workspace
	if path == "" {
		var err error
		if path, err = mesh.DefaultSQLitePath(); err != nil {
			return nil, exitError(exitStartup, "resolving workspace path: %v", err)
		}
	}
	store, err := mesh.OpenSQLiteStore(path)
	if err != nil {
		return nil, exitError(exitStartup, "opening workspace: %v", err)
	}
	return store, nil
}

func findTool(env *environment, id string) (tool.Descriptor, error) {
	d, err := env.registry.Find(id)
	if err != nil {
		return tool.Descriptor{}, exitError(exitUsage, "%v (see \"xmstool list\")", err)
	}
	return d, nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
