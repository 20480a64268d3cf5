package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ghgledger/ghgledger/internal/config"
	"github.com/ghgledger/ghgledger/internal/reference"
)

const seedYAML = `
countries:
  - {name: United States, alpha3: USA}
sectors:
  - {series_code: CO2.EN, industry: Energy, gas_type: CO2, unit: kt}
`

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.Storage.Type = config.StorageLocal
	cfg.Ingest.ArchiveUploads = true
	return cfg
}

func seed(t *testing.T, a *App) {
	t.Helper()
	sf, err := reference.DecodeSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	_, err = a.Seeder().Seed(context.Background(), sf)
	require.NoError(t, err)
}

func TestAppServesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	cfg.GRPC.Enabled = true

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	seed(t, a)

	require.NoError(t, a.Start(context.Background()))
	require.Error(t, a.Start(context.Background()))
	require.NotNil(t, a.GRPCAddr())

	base := "http://" + a.HTTPAddr().String()
	resp, err := http.Post(base+"/v1/emissions/upload", "text/csv", strings.NewReader(
		"Country Name,Country Code,Series Name,Series Code,2020 [YR2020]\nUnited States,USA,CO2,CO2.EN,4\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	keys, err := a.Archiver().List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	resp, err = http.Get(base + "/v1/emissions/trend?country=USA")
	require.NoError(t, err)
	var trend struct {
		TotalRecords int `json:"total_records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trend))
	resp.Body.Close()
	assert.Equal(t, 1, trend.TotalRecords)

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	_, err = http.Get(base + "/health")
	assert.Error(t, err)
}

func TestAppWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Cache.Type = config.CacheRedis
	cfg.Cache.RedisURL = "redis://" + mr.Addr()

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	seed(t, a)

	ctx := context.Background()
	_, err = a.Engine().Trend(ctx, "USA")
	require.NoError(t, err)
	assert.True(t, mr.Exists(a.trends.Key("USA")))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Type = "memcached"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
