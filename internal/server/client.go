package server

import (
	"context"
	"encoding/json"
	"fmt"

	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/query"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client calls the ledger service over gRPC.
type Client struct {
	conn       grpc.ClientConnInterface
	closer     func() error
	adminToken string
}

// Dial connects to a ledger at target without transport security.
func Dial(target, adminToken string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c := NewClient(conn, adminToken)
	c.closer = conn.Close
	return c, nil
}

func NewClient(conn grpc.ClientConnInterface, adminToken string) *Client {
	return &Client{conn: conn, adminToken: adminToken}
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	if c.adminToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.adminToken)
	}
	return c.conn.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) SubmitCommand(ctx context.Context, commandType string, payload json.RawMessage) (*ingestion.SubmitReceipt, error) {
	out := new(ingestion.SubmitReceipt)
	err := c.invoke(ctx, "SubmitCommand", &SubmitCommandRequest{CommandType: commandType, Payload: payload}, out)
	return out, err
}

func (c *Client) GetVault(ctx context.Context, vaultID string) (*query.VaultResponse, error) {
	out := new(query.VaultResponse)
	return out, c.invoke(ctx, "GetVault", &GetVaultRequest{VaultID: vaultID}, out)
}

func (c *Client) ListVaults(ctx context.Context, req *ListVaultsRequest) (*ListVaultsResponse, error) {
	out := new(ListVaultsResponse)
	return out, c.invoke(ctx, "ListVaults", req, out)
}

func (c *Client) GetDepositor(ctx context.Context, req *GetDepositorRequest) (*query.DepositorResponse, error) {
	out := new(query.DepositorResponse)
	return out, c.invoke(ctx, "GetDepositor", req, out)
}

func (c *Client) ListDepositors(ctx context.Context, req *ListDepositorsRequest) (*ListDepositorsResponse, error) {
	out := new(ListDepositorsResponse)
	return out, c.invoke(ctx, "ListDepositors", req, out)
}

func (c *Client) GetFeeUpdate(ctx context.Context, vaultID string) (*query.FeeUpdateResponse, error) {
	out := new(query.FeeUpdateResponse)
	return out, c.invoke(ctx, "GetFeeUpdate", &GetFeeUpdateRequest{VaultID: vaultID}, out)
}

func (c *Client) ListFuelHistory(ctx context.Context, req *ListFuelHistoryRequest) (*ListFuelHistoryResponse, error) {
	out := new(ListFuelHistoryResponse)
	return out, c.invoke(ctx, "ListFuelHistory", req, out)
}

func (c *Client) ListJournals(ctx context.Context, req *ListJournalsRequest) (*ListJournalsResponse, error) {
	out := new(ListJournalsResponse)
	return out, c.invoke(ctx, "ListJournals", req, out)
}

func (c *Client) VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error) {
	out := new(query.IntegrityReport)
	return out, c.invoke(ctx, "VerifyIntegrity", &Empty{}, out)
}

func (c *Client) TakeSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	out := new(SnapshotResponse)
	return out, c.invoke(ctx, "TakeSnapshot", &Empty{}, out)
}

func (c *Client) RebuildProjections(ctx context.Context) (*RebuildResponse, error) {
	out := new(RebuildResponse)
	return out, c.invoke(ctx, "RebuildProjections", &Empty{}, out)
}

func (c *Client) GetLogInfo(ctx context.Context) (*LogInfoResponse, error) {
	out := new(LogInfoResponse)
	return out, c.invoke(ctx, "GetLogInfo", &Empty{}, out)
}
