package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRoot creates a fresh command tree so flag state is not shared.
func newTestRoot() *cobra.Command {
	return NewRootCmd()
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// isolate keeps config discovery away from the developer's own files.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	for _, key := range []string{"XMSTOOL_CATALOG", "XMSTOOL_WORKSPACE", "XMSTOOL_GDAL_DIR", "XMSTOOL_LOG_LEVEL", "XMSTOOL_LISTEN", "XMSTOOL_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitSuccess
	}
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "error %v is not an ExitError", err)
	return exitErr.Code
}

const testFort14 = `Bay mesh
2 4
1 -97.50 27.80 3.0
2 -97.40 27.80 4.5
3 -97.40 27.90 -1.0
4 -97.50 27.90 0.0
1 3 1 2 3
2 3 1 3 4
`

// TestCLIHelperProcess stands in for an external program declared in a catalog.
func TestCLIHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_XMSTOOL_CLI_HELPER") != "1" {
		return
	}
	var args []string
	for i, arg := range os.Args {
		if arg == "--" {
			args = os.Args[i+1:]
			break
		}
	}
	if len(args) > 0 && args[0] == "fail" {
		fmt.Fprintln(os.Stderr, "bad input")
		os.Exit(1)
	}
	fmt.Println(strings.Join(args, ","))
	os.Exit(0)
}

func writeHelperCatalog(t *testing.T) string {
	t.Helper()
	return writeTestFile(t, "catalog.yaml", fmt.Sprintf(`
tools:
  - id: echo-point
    name: Echo point
    category: Test
    description: Prints the point it was given.
    command: [%q, "-test.run=TestCLIHelperProcess", "--", "{x}", "{y}"]
    env:
      GO_WANT_XMSTOOL_CLI_HELPER: "1"
    parser: coordinates
    params:
      - {name: x, kind: number, required: true}
      - {name: y, kind: number, required: true}
  - id: always-fails
    command: [%q, "-test.run=TestCLIHelperProcess", "--", "fail"]
    env:
      GO_WANT_XMSTOOL_CLI_HELPER: "1"
    parser: text
`, os.Args[0], os.Args[0]))
}

func TestListBuiltins(t *testing.T) {
	isolate(t)
	stdout, _, err := executeCommand(newTestRoot(), "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 8)
	assert.Regexp(t, `^CATEGORY\s+ID\s+NAME\s+ORIGIN\s+VERSION$`, lines[0])
	assert.Regexp(t, `^ADCIRC\s+ugrid-from-fort14\s+UGrid from fort.14 File\s+in_process\s+1.0$`, lines[1])
	assert.Regexp(t, `^Coordinates\s+srs-wkt\s+.*external_process`, lines[7])
}

func TestListSearchAndCatalog(t *testing.T) {
	isolate(t)
	catalogPath := writeHelperCatalog(t)

	stdout, _, err := executeCommand(newTestRoot(), "list", "--catalog", catalogPath, "--search", "point")
	require.NoError(t, err)
	assert.Contains(t, stdout, "transform-ugrid-points")
	assert.Contains(t, stdout, "transform-point")
	assert.Contains(t, stdout, "echo-point")
	assert.NotContains(t, stdout, "ugrid-from-fort14")
	assert.NotContains(t, stdout, "always-fails")

	stdout, _, err = executeCommand(newTestRoot(), "list", "--search", "no such tool")
	require.NoError(t, err)
	assert.Equal(t, "No tools found.\n", stdout)
}

func TestInspect(t *testing.T) {
	isolate(t)

	stdout, _, err := executeCommand(newTestRoot(), "inspect", "transform-point")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Transform Point (transform-point)")
	assert.Contains(t, stdout, "Origin:   external_process")
	assert.Regexp(t, `epsg_code_from\s+integer\(1\.\.999999\)\s+true`, stdout)
	assert.Regexp(t, `gdal_tools_path\s+file_in\(dir\)\s+false\s+-`, stdout)

	stdout, _, err = executeCommand(newTestRoot(), "inspect", "export-fort14", "--json")
	require.NoError(t, err)
	var desc map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &desc))
	assert.Equal(t, "export-fort14", desc["id"])
	assert.Equal(t, "in_process", desc["origin"])

	_, _, err = executeCommand(newTestRoot(), "inspect", "nope")
	assert.Equal(t, exitUsage, exitCode(t, err))
}

func TestRunPersistsWorkspace(t *testing.T) {
	isolate(t)
	workspace := filepath.Join(t.TempDir(), "ws.db")
	fort14 := writeTestFile(t, "fort.14", testFort14)

	stdout, _, err := executeCommand(newTestRoot(), "run", "ugrid-from-fort14",
		"--workspace", workspace, "--set", "fort_14_file="+fort14)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Parsing mesh node locations...")
	assert.Contains(t, stdout, `grid "Bay mesh"`)
	assert.Contains(t, stdout, "ugrid-from-fort14 succeeded in")

	stdout, _, err = executeCommand(newTestRoot(), "workspace", "--workspace", workspace)
	require.NoError(t, err)
	assert.Regexp(t, `Bay mesh\s+\S+\s+4\s+2\s+-`, stdout)

	out := filepath.Join(t.TempDir(), "out.14")
	stdout, _, err = executeCommand(newTestRoot(), "run", "export-fort14",
		"--workspace", workspace, "--set", "input_ugrid=Bay mesh", "--set", "fort_14_file="+out)
	require.NoError(t, err)
	assert.Regexp(t, `file fort_14_file: .*out\.14 \(\d+ B\)`, stdout)
	assert.FileExists(t, out)

	stdout, _, err = executeCommand(newTestRoot(), "workspace", "clear", "--workspace", workspace)
	require.NoError(t, err)
	assert.Equal(t, "Workspace cleared.\n", stdout)
	stdout, _, err = executeCommand(newTestRoot(), "workspace", "--workspace", workspace)
	require.NoError(t, err)
	assert.Equal(t, "Workspace is empty.\n", stdout)
}

func TestRunExitCodes(t *testing.T) {
	isolate(t)
	workspace := filepath.Join(t.TempDir(), "ws.db")
	catalogPath := writeHelperCatalog(t)

	stdout, _, err := executeCommand(newTestRoot(), "run", "ugrid-from-fort14", "--workspace", workspace)
	assert.Equal(t, exitValidation, exitCode(t, err))
	assert.Contains(t, stdout, "fort_14_file:")

	_, _, err = executeCommand(newTestRoot(), "run", "ugrid-from-fort14", "--workspace", workspace, "--set", "oops")
	assert.Equal(t, exitUsage, exitCode(t, err))

	stdout, _, err = executeCommand(newTestRoot(), "run", "echo-point",
		"--catalog", catalogPath, "--workspace", workspace, "--set", "x=12.34", "--set", "y=56.78", "--json")
	require.NoError(t, err)
	var outcome map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &outcome))
	assert.Equal(t, "succeeded", outcome["state"])
	artifacts := outcome["artifacts"].([]any)
	require.Len(t, artifacts, 1)
	assert.Equal(t, []any{12.34, 56.78}, artifacts[0].(map[string]any)["value"])

	_, _, err = executeCommand(newTestRoot(), "run", "always-fails", "--catalog", catalogPath, "--workspace", workspace)
	assert.Equal(t, exitToolFailed, exitCode(t, err))
	assert.ErrorContains(t, err, "bad input")
}

func TestStartupFailures(t *testing.T) {
	isolate(t)

	bad := writeTestFile(t, "catalog.yaml", "tools:\n  - id: ugrid-from-fort14\n    command: [echo]\n    parser: text\n")
	_, _, err := executeCommand(newTestRoot(), "list", "--catalog", bad)
	assert.Equal(t, exitStartup, exitCode(t, err))
	assert.ErrorContains(t, err, "ugrid-from-fort14")

	_, _, err = executeCommand(newTestRoot(), "list", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, exitStartup, exitCode(t, err))
}

func TestConfigFileSuppliesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	catalogPath := writeHelperCatalog(t)
	configPath := filepath.Join(dir, "xmstool.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf("catalog: %q\nlog_level: error\n", catalogPath)), 0o644))

	stdout, _, err := executeCommand(newTestRoot(), "list", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "echo-point")

	t.Setenv("XMSTOOL_CATALOG", "")
	t.Chdir(dir)
	stdout, _, err = executeCommand(newTestRoot(), "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "echo-point")
}
