package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "ingest", "seed", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("data-dir"))

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("grpc-addr"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedThenIngest(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	common := []string{"--data-dir", dataDir, "--log-level", "error"}

	seedFile := writeFile(t, dir, "seed.yaml", `
countries:
  - {name: United States, alpha3: USA}
sectors:
  - {series_code: CO2.EN, industry: Energy, gas_type: CO2, unit: kt}
`)
	out, err := execute(t, append([]string{"seed", seedFile}, common...)...)
	require.NoError(t, err)
	var seeded map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &seeded))
	assert.Equal(t, 1, seeded["countries_created"])
	assert.Equal(t, 1, seeded["sectors_created"])

	csvFile := writeFile(t, dir, "emissions.csv",
		"Country Name,Country Code,Series Name,Series Code,2019 [YR2019],2020 [YR2020]\n"+
			"United States,USA,CO2,CO2.EN,10,5\n")
	out, err = execute(t, append([]string{"ingest", csvFile}, common...)...)
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "committed", report["stage"])
	assert.Equal(t, float64(2), report["inserted"])

	out, err = execute(t, append([]string{"ingest", csvFile}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion rejected")
	assert.Contains(t, out, `"stage": "rejected"`)
}

func TestIngestArgs(t *testing.T) {
	_, err := execute(t, "ingest")
	assert.Error(t, err)

	_, err = execute(t, "ingest", "a.csv", "--from-storage", "uploads/x.csv")
	assert.Error(t, err)
}

func TestIngestFromStorageRequiresStorage(t *testing.T) {
	dataDir := t.TempDir()
	_, err := execute(t, "ingest", "--from-storage", "uploads/x.csv", "--data-dir", dataDir, "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a storage type")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ghgledger version dev")
}
