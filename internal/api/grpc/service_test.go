package grpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ghgledger/ghgledger/internal/cache"
	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/gas"
	"github.com/ghgledger/ghgledger/internal/ingest"
	"github.com/ghgledger/ghgledger/internal/query"
	"github.com/ghgledger/ghgledger/internal/store"
	"github.com/ghgledger/ghgledger/pkg/types"
)

const sampleCSV = "Country Name,Country Code,Series Name,Series Code,2019 [YR2019],2020 [YR2020]\n" +
	"United States,USA,CO2,CO2.EN,10,5\n" +
	"United States,USA,Methane,CH4.AG,5,2\n" +
	"France,FRA,CO2,CO2.EN,3,..\n"

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, c := range []*types.Country{
		{Name: "United States", Alpha3: "USA"},
		{Name: "France", Alpha3: "FRA"},
	} {
		require.NoError(t, s.CreateCountry(ctx, c))
	}
	for _, sec := range []*types.Sector{
		{Industry: "Energy", GasType: gas.CO2, Unit: "kt", SeriesCode: "CO2.EN"},
		{Industry: "Agriculture", GasType: gas.Methane, Unit: "kt", SeriesCode: "CH4.AG"},
	} {
		require.NoError(t, s.CreateSector(ctx, sec))
	}

	mem := cache.NewMemory(cache.MemoryOptions{JanitorInterval: -1})
	t.Cleanup(func() { mem.Close() })
	trends := query.NewTrendCache(mem, "test:", time.Minute, logger)
	engine := query.NewEngine(s, gas.DefaultTable(), logger, query.WithTrendCache(trends))
	writer := ingest.NewWriter(s, logger, ingest.WithInvalidator(trends))
	pipeline := ingest.NewPipeline(writer, 4, logger)
	return NewServer(pipeline, engine, logger), s
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	svc, _ := newTestServer(t)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(zap.NewNop())
	svc.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func TestIngestAndTrend(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	report, err := client.IngestCSV(ctx, []byte(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, "committed", report.AsMap()["stage"])
	assert.Equal(t, float64(5), report.AsMap()["inserted"])

	var header metadata.MD
	ctx = metadata.AppendToOutgoingContext(ctx, RequestIDKey, "rpc-7")
	trend, err := client.Trend(ctx, "USA", grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"rpc-7"}, header.Get(RequestIDKey))

	m := trend.AsMap()
	assert.Equal(t, float64(2), m["total_records"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"year": float64(2019), "total_emissions": float64(15)},
		map[string]interface{}{"year": float64(2020), "total_emissions": float64(7)},
	}, m["data"])
}

func TestIngestSurvivesCanceledCaller(t *testing.T) {
	svc, s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.IngestCSV(ctx, wrapperspb.Bytes([]byte(sampleCSV)))
	require.NoError(t, err)
	assert.Equal(t, "committed", report.AsMap()["stage"])

	n, err := s.CountLive(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestIngestRejectionCarriesReport(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.IngestCSV(ctx, []byte(sampleCSV))
	require.NoError(t, err)

	_, err = client.IngestCSV(ctx, []byte(sampleCSV))
	st := status.Convert(err)
	assert.Equal(t, codes.AlreadyExists, st.Code())
	require.Len(t, st.Details(), 1)
	detail, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	assert.Equal(t, "rejected", detail.AsMap()["stage"])

	_, err = client.IngestCSV(ctx, []byte("Country,Series Code\nUSA,CO2.EN\n"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.IngestCSV(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTrendErrors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Trend(ctx, "XXX")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Trend(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Trend(ctx, "   ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTrendTrimsCountryCode(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.IngestCSV(ctx, []byte(sampleCSV))
	require.NoError(t, err)

	trend, err := client.Trend(ctx, " USA ")
	require.NoError(t, err)
	assert.Equal(t, float64(2), trend.AsMap()["total_records"])
}

func TestSummary(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.IngestCSV(ctx, []byte(sampleCSV))
	require.NoError(t, err)

	page, err := client.Summary(ctx, 2019, 2, 2)
	require.NoError(t, err)
	m := page.AsMap()
	assert.Equal(t, float64(3), m["total"])
	assert.Equal(t, float64(2), m["total_pages"])
	assert.Len(t, m["data"], 1)

	_, err = client.Summary(ctx, 2019, -1, 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSummaryRequest(t *testing.T) {
	in, err := structpb.NewStruct(map[string]interface{}{"year": 2020.5})
	require.NoError(t, err)
	_, err = summaryRequest(in)
	assert.Equal(t, ledgererr.CodeInvalidArgument, ledgererr.GetCode(err))

	in, err = structpb.NewStruct(map[string]interface{}{})
	require.NoError(t, err)
	_, err = summaryRequest(in)
	assert.Equal(t, ledgererr.CodeInvalidArgument, ledgererr.GetCode(err))

	in, err = structpb.NewStruct(map[string]interface{}{"year": 2020, "page": 3})
	require.NoError(t, err)
	req, err := summaryRequest(in)
	require.NoError(t, err)
	assert.Equal(t, 2020, *req.Year)
	assert.Equal(t, query.PageRequest{Limit: query.DefaultLimit, Page: 3}, req.Page)
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, codes.NotFound, CodeFor(ledgererr.NotFound("x")))
	assert.Equal(t, codes.AlreadyExists, CodeFor(ledgererr.Conflict("x")))
	assert.Equal(t, codes.InvalidArgument, CodeFor(ledgererr.NoValidData("x")))
	assert.Equal(t, codes.Internal, CodeFor(ledgererr.NewStoreError("x", nil)))
}
