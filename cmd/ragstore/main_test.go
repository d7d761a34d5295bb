package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func findFlag(t *testing.T, flags []cli.Flag, name string) cli.Flag {
	t.Helper()
	for _, flag := range flags {
		for _, n := range flag.Names() {
			if n == name {
				return flag
			}
		}
	}
	t.Fatalf("flag %q not found", name)
	return nil
}

func TestAppFlags(t *testing.T) {
	app := newApp()

	t.Run("log-level defaults to info", func(t *testing.T) {
		f, ok := findFlag(t, app.Flags, "log-level").(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, "info", f.Value)
		assert.Equal(t, []string{"l"}, f.Aliases)
	})

	t.Run("backend flags have no defaults", func(t *testing.T) {
		for _, name := range []string{"db", "dsn", "embedding-host", "embedding-model", "distance"} {
			f, ok := findFlag(t, app.Flags, name).(*cli.StringFlag)
			require.True(t, ok, name)
			assert.Empty(t, f.Value, name)
			assert.Empty(t, f.EnvVars, name)
		}
	})

	t.Run("reembed defaults", func(t *testing.T) {
		cmd := findCommand(t, app, "reembed")
		batch, ok := findFlag(t, cmd.Flags, "batch-size").(*cli.IntFlag)
		require.True(t, ok)
		assert.Equal(t, 100, batch.Value)
		retries, ok := findFlag(t, cmd.Flags, "max-retries").(*cli.IntFlag)
		require.True(t, ok)
		assert.Equal(t, 3, retries.Value)
	})

	t.Run("search requires a collection", func(t *testing.T) {
		cmd := findCommand(t, app, "search")
		f, ok := findFlag(t, cmd.Flags, "collection").(*cli.StringSliceFlag)
		require.True(t, ok)
		assert.True(t, f.Required)
	})

	t.Run("page defaults", func(t *testing.T) {
		cmd := findCommand(t, app, "page")
		page, ok := findFlag(t, cmd.Flags, "page").(*cli.IntFlag)
		require.True(t, ok)
		assert.Equal(t, 1, page.Value)
		status, ok := findFlag(t, cmd.Flags, "status").(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, "enabled", status.Value)
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"INFO", slog.LevelInfo},
			{"WaRn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "log-level", Value: "info"},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						assert.True(t, slog.Default().Enabled(c.Context, tc.expected))
						return nil
					},
				}
				require.NoError(t, app.Run([]string{"test", "--log-level", tc.input}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseFilter(t *testing.T) {
	filter, err := parseFilter("")
	require.NoError(t, err)
	assert.Nil(t, filter)

	filter, err = parseFilter(`{"scene":"faq","label":{"in":["a","b"]}}`)
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.False(t, filter.IsEmpty())

	_, err = parseFilter(`{"scene":`)
	assert.Error(t, err)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\t\tc", 10))
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
}

// cliEnv runs the app against a badger directory with a mock embedding provider.
type cliEnv struct {
	t      *testing.T
	db     string
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	orig := newProvider
	newProvider = func(cfg *ai.Config) (ai.AIProvider, error) {
		return mock.NewMockProvider(cfg.Dimensions), nil
	}
	t.Cleanup(func() { newProvider = orig })

	dir := t.TempDir()
	return &cliEnv{
		t:      t,
		db:     filepath.Join(dir, "db"),
		config: filepath.Join(dir, "absent.yaml"),
	}
}

func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	base := []string{"ragstore",
		"--log-level", "error",
		"--config", e.config,
		"--env-file", e.config + ".env",
		"--db", e.db,
		"--dimensions", "8",
	}
	err := app.Run(append(base, args...))
	return out.String(), errOut.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, _, err := e.run(args...)
	require.NoError(e.t, err, "ragstore %s", strings.Join(args, " "))
	return out
}

func TestCommandsEndToEnd(t *testing.T) {
	env := newCLIEnv(t)

	dir := t.TempDir()
	garden := filepath.Join(dir, "garden.md")
	kitchen := filepath.Join(dir, "kitchen.md")
	require.NoError(t, os.WriteFile(garden, []byte("Tomatoes need full sun."), 0o644))
	require.NoError(t, os.WriteFile(kitchen, []byte("Preheat the oven first."), 0o644))

	out := env.mustRun("register", "--collection", "kb", "--scene", "faq", garden)
	fields := strings.Fields(out)
	require.Len(t, fields, 3)
	gardenID := fields[0]
	assert.Equal(t, "wait", fields[1])

	env.mustRun("register", "--collection", "kb", kitchen)

	out = env.mustRun("files", "--collection", "kb")
	assert.Contains(t, out, gardenID)
	assert.Equal(t, 2, strings.Count(out, "\n"))

	out = env.mustRun("ingest")
	assert.Contains(t, out, "selected=2 claimed=2 succeeded=2 failed=0")

	out = env.mustRun("collections")
	assert.Contains(t, out, "kb\t")

	out = env.mustRun("search", "--collection", "kb", "--top-k", "1", "Tomatoes need full sun.")
	assert.Contains(t, out, "Tomatoes need full sun.")
	assert.NotContains(t, out, "oven")

	out = env.mustRun("search", "--collection", "kb", "--filter", `{"scene":"faq"}`, "oven")
	assert.Contains(t, out, "Tomatoes")
	assert.NotContains(t, out, "oven")

	out = env.mustRun("page", "--collection", "kb")
	assert.Contains(t, out, "of 2 records")

	out = env.mustRun("status", "--file-id", gardenID, "disabled")
	assert.Contains(t, out, "Updated 1 records")

	out = env.mustRun("page", "--collection", "kb")
	assert.Contains(t, out, "of 1 records")
	out = env.mustRun("page", "--collection", "kb", "--status", "all")
	assert.Contains(t, out, "of 2 records")

	_, errOut, err := env.run("reembed", "--collection", "kb")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Reembedding complete")

	out = env.mustRun("delete", "--file-id", gardenID)
	assert.Contains(t, out, "Deleted 1 records")

	out = env.mustRun("remove", gardenID)
	assert.Contains(t, out, "Removed "+gardenID)
	out = env.mustRun("files")
	assert.NotContains(t, out, gardenID)

	out = env.mustRun("drop-collection", "kb")
	assert.Contains(t, out, `Deleted collection "kb"`)
	out = env.mustRun("collections")
	assert.Contains(t, out, "No collections")
}

func TestCommandValidation(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "register without paths", args: []string{"register", "--collection", "kb"}, want: "at least one path"},
		{name: "search without query", args: []string{"search", "--collection", "kb"}, want: "query is required"},
		{name: "search bad filter", args: []string{"search", "--collection", "kb", "--filter", "{", "q"}, want: "invalid metadata filter"},
		{name: "status bad value", args: []string{"status", "--file-id", "f", "paused"}, want: "invalid status"},
		{name: "status without selector", args: []string{"status", "enabled"}, want: "--file-id"},
		{name: "delete with both selectors", args: []string{"delete", "--file-id", "f", "--custom-id", "c"}, want: "--file-id"},
		{name: "reingest without ids", args: []string{"reingest"}, want: "file id"},
		{name: "reembed bad batch size", args: []string{"reembed", "--batch-size", "0"}, want: "batch-size"},
		{name: "page missing collection", args: []string{"page", "--collection", "nope"}, want: `"nope"`},
		{name: "unknown distance", args: []string{"--distance", "manhattan", "collections"}, want: "distance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
