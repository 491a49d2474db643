package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", putThenGetYAML)
	writeScenario(t, dir, "a.cue", "name: \"a\"\n")
	writeScenario(t, dir, "sub/c.yml", putThenGetYAML)
	writeScenario(t, dir, "golden/b.golden", putThenGetGolden)
	writeScenario(t, dir, "golden/stray.yaml", putThenGetYAML)
	writeScenario(t, dir, "README.md", "# scenarios")

	files, err := FindScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yml"),
	}, files)

	files, err = FindScenarioFiles(dir, "[ab]")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesErrors(t *testing.T) {
	_, err := FindScenarioFiles("/nonexistent", "")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)

	file := writeScenario(t, t.TempDir(), "x.yaml", putThenGetYAML)
	_, err = FindScenarioFiles(file, "")
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Message, "not a directory")
}

func TestLoadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "put_then_get.yaml", putThenGetYAML)

	scenario, err := LoadScenarioFile(path)
	require.NoError(t, err)
	assert.Equal(t, "put_then_get", scenario.Name)

	_, err = LoadScenarioFile(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "abort.golden"),
		goldenFilePath(filepath.Join("scenarios", "abort.cue")))
}

func TestIsScenarioFile(t *testing.T) {
	assert.True(t, IsScenarioFile("a.yaml"))
	assert.True(t, IsScenarioFile("a.YML"))
	assert.True(t, IsScenarioFile("a.cue"))
	assert.False(t, IsScenarioFile("a.json"))
}
