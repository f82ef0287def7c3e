package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/ai/mock"
	"github.com/poiesic/answerbank/builder"
	"github.com/poiesic/answerbank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type env struct {
	dir    string
	root   string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	orig := newProvider
	newProvider = func(*ai.Config) (ai.Provider, error) {
		return mock.NewMockProvider(), nil
	}
	t.Cleanup(func() { newProvider = orig })

	dir := t.TempDir()
	return &env{
		dir:    dir,
		root:   filepath.Join(dir, "store"),
		config: filepath.Join(dir, "answerbank.yaml"),
	}
}

func (e *env) run(args ...string) (string, error) {
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	full := append([]string{"answerbank", "--log-level", "error", "--config", e.config, "--root", e.root}, args...)
	err := app.Run(full)
	return out.String(), err
}

func (e *env) writeCorpus(t *testing.T) string {
	t.Helper()
	rows := []builder.Row{
		{Code: "R1", Path: [3]string{"A", "B", "C"}, Question: "refund policy", Answer: "Refunds are processed in 5 days"},
		{Code: "R2", Path: [3]string{"A", "B", "C"}, Question: "refund timing", Answer: "Refund takes five business days"},
		{Code: "H1", Path: [3]string{"X", "Y", "Z"}, Question: "opening hours", Answer: "We open at 9am"},
		{Code: "BAD", Path: [3]string{"X", "Y", ""}, Question: "orphan", Answer: "no minor category"},
	}
	path := filepath.Join(e.dir, "corpus.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, builder.WriteCSV(f, rows))
	require.NoError(t, f.Close())
	return path
}

func TestBuildThenQuery(t *testing.T) {
	e := newEnv(t)
	corpus := e.writeCorpus(t)

	out, err := e.run("build", "--quiet", corpus)
	require.NoError(t, err)
	assert.Contains(t, out, "State:     done")
	assert.Contains(t, out, "Version:   1")
	assert.Contains(t, out, "Skipped 1 rows:")
	assert.Contains(t, out, "line 5: missing cat3")

	out, err = e.run("search", "--category", "A", "how long does a refund take")
	require.NoError(t, err)
	r1, r2 := strings.Index(out, "[R1]"), strings.Index(out, "[R2]")
	require.True(t, r1 >= 0 && r2 >= 0, out)
	assert.Less(t, r2, r1)
	assert.NotContains(t, out, "[H1]")

	out, err = e.run("search", "-C", "Nowhere", "refund")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching answers.")

	out, err = e.run("keyword", "refund")
	require.NoError(t, err)
	assert.Contains(t, out, "2 answers")

	out, err = e.run("categories")
	require.NoError(t, err)
	assert.Equal(t, "A\n  B\n    C (2)\nX\n  Y\n    Z (1)\n", out)

	out, err = e.run("categories", "-C", "X/Y")
	require.NoError(t, err)
	assert.Equal(t, "Z (1)\n", out)

	out, err = e.run("info")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:     1")
	assert.Contains(t, out, "Records:     3 (3 indexed)")
	assert.Contains(t, out, "Model:       "+mock.ModelName)
}

func TestBuildShowsProgress(t *testing.T) {
	e := newEnv(t)
	corpus := e.writeCorpus(t)

	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer, app.ErrWriter = &out, &errOut
	err := app.Run([]string{"answerbank", "--log-level", "error", "--config", e.config, "--root", e.root, "build", corpus})
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "Embedding:")
	assert.Contains(t, errOut.String(), "done (4 rows, 1 skipped)")
}

func TestCommandErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.run("build")
	assert.Error(t, err)

	_, err = e.run("build", filepath.Join(e.dir, "missing.csv"))
	assert.Error(t, err)

	_, err = e.run("search", "anything")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = e.run("search")
	assert.Error(t, err)

	_, err = e.run("info")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = e.run("search", "--dedup", "fuzzy", "anything")
	assert.Error(t, err)
}

func TestRootFromEnvironment(t *testing.T) {
	e := newEnv(t)
	corpus := e.writeCorpus(t)
	root := filepath.Join(e.dir, "from-env")
	t.Setenv("ANSWERBANK_ROOT", root)

	app := newApp()
	app.Writer, app.ErrWriter = &bytes.Buffer{}, &bytes.Buffer{}
	err := app.Run([]string{"answerbank", "--config", e.config, "build", "-q", corpus})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "CURRENT"))
	assert.NoError(t, err)
}

func TestInitConfig(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("init-config")
	require.NoError(t, err)
	assert.Contains(t, out, e.config)

	data, err := os.ReadFile(e.config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "root: "+e.root)

	_, err = e.run("init-config")
	assert.Error(t, err)

	_, err = e.run("init-config", "--force")
	assert.NoError(t, err)
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"A", []string{"A"}},
		{" A / B /C ", []string{"A", "B", "C"}},
		{"A//B", []string{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCategory(tt.in).Path)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
		t.Run(level, func(t *testing.T) {
			app := &cli.App{
				Name:   "test",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: level}},
				Before: setupLogger,
				Action: func(*cli.Context) error { return nil },
			}
			require.NoError(t, app.Run([]string{"test"}))
		})
	}

	t.Run("invalid level", func(t *testing.T) {
		app := &cli.App{
			Name:   "test",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "verbose"}},
			Before: setupLogger,
			Action: func(*cli.Context) error { return nil },
		}
		err := app.Run([]string{"test"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
