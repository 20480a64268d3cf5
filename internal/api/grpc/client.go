package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls ghgledger.v1.EmissionsService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// IngestCSV uploads one CSV file.
func (c *Client) IngestCSV(ctx context.Context, data []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodIngestCSV, wrapperspb.Bytes(data), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Trend fetches the yearly trend of a country.
func (c *Client) Trend(ctx context.Context, alpha3 string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodTrend, wrapperspb.String(alpha3), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary fetches one page of the yearly summary. Zero limit or page take
// the server defaults.
func (c *Client) Summary(ctx context.Context, year, limit, page int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]interface{}{"year": year}
	if limit != 0 {
		fields["limit"] = limit
	}
	if page != 0 {
		fields["page"] = page
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodSummary, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
