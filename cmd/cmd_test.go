package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

const fixtureConfig = `
logging:
  development: false
  level: error
progress:
  log_enabled: false
collectors:
  - id: alpha
    kind: static
    records:
      - phone: "212-555-0100"
        name: "Joe's Pizza"
      - phone: "(212) 555-0101"
  - id: beta
    kind: static
    records:
      - phone: "212.555.0100"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureConfig), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExtractCommandPrintsSnapshot(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "extract", "--keywords", "pizza", "--location", "New York")
	require.NoError(t, err)

	var result extractResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, extract.StatusCompleted, result.Session.Status)
	require.Equal(t, []string{"alpha", "beta"}, result.Session.Query.Platforms)
	require.Len(t, result.Records, 2)
	require.Equal(t, 2, result.Session.ResultCount)
}

func TestExtractCommandRejectsUnknownPlatform(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "--config", path, "extract", "--keywords", "pizza", "--platforms", "gamma")
	require.ErrorIs(t, err, extract.ErrInvalidQuery)
}

func TestPlatformsCommandListsCollectors(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "platforms")
	require.NoError(t, err)
	require.Contains(t, out, "alpha")
	require.Contains(t, out, "beta")
	require.Contains(t, out, "static")
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "platforms")
	require.ErrorContains(t, err, "load config")
}
