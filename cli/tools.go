package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aquaveo/xmstool-runner/tool"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools by category",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().StringP("search", "s", "", "Only list tools matching every search term")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	seq := env.registry.All()
	if search, _ := cmd.Flags().GetString("search"); strings.TrimSpace(search) != "" {
		seq = env.registry.Search(search)
	}
	tools := slices.Collect(seq)
	if len(tools) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools found.")
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "CATEGORY\tID\tNAME\tORIGIN\tVERSION")
	for _, category := range env.registry.Categories() {
		for _, d := range tools {
			if d.Category() != category {
				continue
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				orDash(d.Category()), d.ID(), d.DisplayName(), d.Origin(), orDash(d.Version()))
		}
	}
	return writer.Flush()
}

// NewInspectCmd creates the "inspect" subcommand.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <tool-id>",
		Short: "Show a tool and its parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().Bool("json", false, "Print the descriptor as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	d, err := findTool(env, args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return exitError(exitUsage, "encoding descriptor: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	printf(out, "%s (%s)\n", d.DisplayName(), d.ID())
	printf(out, "Category: %s\n", orDash(d.Category()))
	printf(out, "Version:  %s\n", orDash(d.Version()))
	printf(out, "Origin:   %s\n", d.Origin())
	if d.Description() != "" {
		printf(out, "\n%s\n", d.Description())
	}
	params := d.Params()
	if len(params) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	writer := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "PARAM\tKIND\tREQUIRED\tDEFAULT\tLABEL")
	for _, p := range params {
		fmt.Fprintf(writer, "%s\t%s\t%t\t%s\t%s\n", p.Name, describeKind(p), p.Required, orDash(p.Default), p.DisplayLabel())
	}
	return writer.Flush()
}

func describeKind(p tool.ParamSpec) string {
	c := p.Constraints
	var notes []string
	if len(c.Extensions) > 0 {
		notes = append(notes, strings.Join(c.Extensions, "|"))
	}
	if len(c.Choices) > 0 {
		notes = append(notes, strings.Join(c.Choices, "|"))
	}
	if c.Min != nil || c.Max != nil {
		lo, hi := "", ""
		if c.Min != nil {
			lo = fmt.Sprint(*c.Min)
		}
		if c.Max != nil {
			hi = fmt.Sprint(*c.Max)
		}
		notes = append(notes, lo+".."+hi)
	}
	if c.Directory {
		notes = append(notes, "dir")
	}
	if len(notes) == 0 {
		return string(p.Kind)
	}
	return fmt.Sprintf("%s(%s)", p.Kind, strings.Join(notes, ","))
}
