package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aquaveo/xmstool-runner/mesh"
)

// NewWorkspaceCmd creates the "workspace" command group.
func NewWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Show or clear the saved mesh workspace",
		Args:  cobra.NoArgs,
		RunE:  runWorkspaceShow,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every grid and dataset from the workspace",
		Args:  cobra.NoArgs,
		RunE:  runWorkspaceClear,
	})
	return cmd
}

func runWorkspaceShow(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

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

	grids := project.Grids()
	if len(grids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Workspace is empty.")
		return nil
	}
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "GRID\tUUID\tPOINTS\tCELLS\tDATASETS")
	for _, g := range grids {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			g.Name, g.UUID,
			humanize.Comma(int64(len(g.Points))),
			humanize.Comma(int64(len(g.Cells))),
			datasetNames(project.DatasetsFor(g.UUID)))
	}
	return writer.Flush()
}

func datasetNames(datasets []*mesh.Dataset) string {
	if len(datasets) == 0 {
		return "-"
	}
	names := datasets[0].Name
	for _, d := range datasets[1:] {
		names += ", " + d.Name
	}
	return names
}

func runWorkspaceClear(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	store, err := env.openWorkspace()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.Save(cmd.Context(), mesh.NewProject()); err != nil {
		return exitError(exitStartup, "clearing workspace: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Workspace cleared.")
	return nil
}
