// Package grpc serves the ingestion and trend/summary queries over gRPC.
// Messages are protobuf well-known types, so no generated code is needed:
// CSV bytes travel as BytesValue, the country code as StringValue and
// results as Struct.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/ingest"
	"github.com/ghgledger/ghgledger/internal/query"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ghgledger.v1.EmissionsService"

// Ingestor runs a CSV ingestion. ingest.Pipeline implements it.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte) (*ingest.Report, error)
}

// Queries is the read surface served over gRPC. query.Engine implements it.
type Queries interface {
	Trend(ctx context.Context, alpha3 string) (*query.TrendResult, error)
	Summary(ctx context.Context, req query.SummaryRequest) (*query.SummaryPage, error)
}

// EmissionsServer is the server API of ghgledger.v1.EmissionsService.
type EmissionsServer interface {
	IngestCSV(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
	Trend(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	Summary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// Server implements EmissionsServer.
type Server struct {
	ingestor Ingestor
	queries  Queries
	logger   *zap.Logger
}

var _ EmissionsServer = (*Server)(nil)

// NewServer creates the gRPC service implementation.
func NewServer(ingestor Ingestor, queries Queries, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{ingestor: ingestor, queries: queries, logger: logger}
}

// Register registers the service on r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

// IngestCSV ingests one wide-format CSV file. The run is detached from the
// caller's cancellation. A rejected run carries its report as a Struct
// status detail.
func (s *Server) IngestCSV(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "csv payload is empty")
	}

	report, err := s.ingestor.Ingest(context.WithoutCancel(ctx), in.GetValue())
	if err != nil {
		st := s.statusOf("IngestCSV", err)
		if report != nil && st.Code() != codes.Internal {
			if detail, derr := toStruct(report); derr == nil {
				if withDetail, werr := st.WithDetails(detail); werr == nil {
					st = withDetail
				}
			}
		}
		return nil, st.Err()
	}
	return respond(report)
}

// Trend returns the yearly trend of the country named by in.
func (s *Server) Trend(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	country := strings.TrimSpace(in.GetValue())
	if country == "" {
		return nil, status.Error(codes.InvalidArgument, "country is required")
	}
	res, err := s.queries.Trend(ctx, country)
	if err != nil {
		return nil, s.statusOf("Trend", err).Err()
	}
	return respond(res)
}

// Summary returns one page of the yearly summary. The request struct holds
// a required numeric "year" and optional "limit" and "page".
func (s *Server) Summary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := summaryRequest(in)
	if err != nil {
		return nil, toStatus(err).Err()
	}
	res, err := s.queries.Summary(ctx, req)
	if err != nil {
		return nil, s.statusOf("Summary", err).Err()
	}
	return respond(res)
}

// statusOf converts err and logs internal failures, whose cause is not
// returned to the client.
func (s *Server) statusOf(method string, err error) *status.Status {
	st := toStatus(err)
	if st.Code() == codes.Internal {
		s.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return st
}

func summaryRequest(in *structpb.Struct) (query.SummaryRequest, error) {
	fields := in.GetFields()

	rawYear, err := integerField(fields, "year")
	if err != nil {
		return query.SummaryRequest{}, err
	}
	year, err := query.ParseYear(rawYear)
	if err != nil {
		return query.SummaryRequest{}, err
	}

	rawLimit, err := integerField(fields, "limit")
	if err != nil {
		return query.SummaryRequest{}, err
	}
	rawPage, err := integerField(fields, "page")
	if err != nil {
		return query.SummaryRequest{}, err
	}
	page, err := query.ParsePage(rawLimit, rawPage)
	if err != nil {
		return query.SummaryRequest{}, err
	}
	return query.SummaryRequest{Year: &year, Page: page}, nil
}

// integerField returns the decimal form of an integral number field, or ""
// when the field is absent or null.
func integerField(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return "", ledgererr.InvalidArgument("%s must be an integer", name)
		}
		return strconv.FormatInt(int64(n), 10), nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	default:
		return "", ledgererr.InvalidArgument("%s must be a number", name)
	}
}

// toStruct converts a JSON-encodable result into a Struct using its JSON
// field names.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func respond(v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// CodeFor maps a ledger error code to a gRPC status code.
func CodeFor(err error) codes.Code {
	switch ledgererr.GetCode(err) {
	case ledgererr.CodeNotFound:
		return codes.NotFound
	case ledgererr.CodeConflict, ledgererr.CodeAllDuplicates:
		return codes.AlreadyExists
	case ledgererr.CodeInvalidFormat, ledgererr.CodeInvalidArgument, ledgererr.CodeNoValidData:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

func toStatus(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	code := CodeFor(err)
	if code == codes.Internal {
		return status.New(code, "internal error")
	}
	var le *ledgererr.LedgerError
	if errors.As(err, &le) {
		return status.New(code, le.Message)
	}
	return status.New(code, err.Error())
}

func _EmissionsService_IngestCSV_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmissionsServer).IngestCSV(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodIngestCSV}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmissionsServer).IngestCSV(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _EmissionsService_Trend_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmissionsServer).Trend(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodTrend}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmissionsServer).Trend(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _EmissionsService_Summary_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmissionsServer).Summary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSummary}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmissionsServer).Summary(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

const (
	methodIngestCSV = "/" + ServiceName + "/IngestCSV"
	methodTrend     = "/" + ServiceName + "/Trend"
	methodSummary   = "/" + ServiceName + "/Summary"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EmissionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IngestCSV", Handler: _EmissionsService_IngestCSV_Handler},
		{MethodName: "Trend", Handler: _EmissionsService_Trend_Handler},
		{MethodName: "Summary", Handler: _EmissionsService_Summary_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ghgledger/v1/emissions.proto",
}
