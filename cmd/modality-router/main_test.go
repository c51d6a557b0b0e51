package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/config"
	"github.com/dshills/modality-router/pkg/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func localConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "router.db")+`
embedding:
  provider: local
  dimension: 32
log:
  level: error
`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "modality-router dev")
	assert.Contains(t, out, "Build Mode:")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestModalityFloors(t *testing.T) {
	floors := modalityFloors(map[string]float64{"CBT": 0.4, "dbt": 0.5, "act": 0.9, "unknown": 0.1}, testLogger())
	assert.Equal(t, map[types.Modality]float64{types.ModalityCBT: 0.4, types.ModalityDBT: 0.5}, floors)
}

func TestBuildApp(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 32
	cfg.Log.Level = "error"

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Equal(t, "local", a.embedder.Provider())
	assert.Equal(t, 32, a.embedder.Dimension())

	result, err := a.service.Classify(ctx, classifier.Request{Query: "I want to kill myself"})
	require.NoError(t, err)
	assert.Equal(t, types.ModalityDBT, result.RecommendedApproach)
	assert.GreaterOrEqual(t, result.Confidence, 0.95)
}

func TestBuildApp_BadStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mongo"
	cfg.Embedding.Provider = "local"
	cfg.Log.Level = "error"

	_, err := buildApp(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "open storage")
}

func TestIngestClassifyEvaluateStatus(t *testing.T) {
	dir := t.TempDir()
	cfgPath := localConfig(t, dir)

	corpus := writeFile(t, dir, "corpus.toml", `
[[documents]]
modality = "cbt"
title = "Cognitive restructuring"
text = """
Negative thoughts like everyone hates me are cognitive distortions.

Try a thought record: write the thought and the evidence against it."""

[[documents]]
modality = "dbt"
title = "Emotion regulation"
text = "Emotion regulation skills help when emotions swing from calm to furious in a minute."
`)
	out, err := execute(t, "--config", cfgPath, "ingest", corpus)
	require.NoError(t, err)
	assert.Contains(t, out, "Documents ingested: 2")
	assert.Contains(t, out, "Documents failed:   0")

	out, err = execute(t, "--config", cfgPath, "classify", "I have trouble controlling my emotions.", "One minute I'm fine, the next I'm furious.")
	require.NoError(t, err)
	var result types.ClassificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, types.ModalityDBT, result.RecommendedApproach)
	assert.NotEmpty(t, result.RecommendedTechniques)

	cases := writeFile(t, dir, "cases.toml", `
[[cases]]
query = "I keep having negative thoughts and I think everyone hates me"
expected_approach = "cbt"

[[cases]]
query = "I want to kill myself"
expected_approach = "dbt"
`)
	out, err = execute(t, "--config", cfgPath, "evaluate", cases, "--min-accuracy", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Accuracy 100.0% (2/2)")

	out, err = execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents")
	assert.Contains(t, out, "local/")
}

func TestClassifyCommand_BadPrevious(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--config", localConfig(t, dir), "classify", "--previous", "act", "hello")
	assert.ErrorContains(t, err, "--previous")

	// reset the persistent flag value for later tests
	require.NoError(t, classifyCmd.Flags().Set("previous", ""))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
