package server

import (
	"context"

	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/query"

	"google.golang.org/grpc"
)

const serviceName = "vaultledger.v1.VaultLedger"

// LedgerServer is the gRPC surface of the ledger: command submission, read-model
// queries and operator actions.
type LedgerServer interface {
	SubmitCommand(context.Context, *SubmitCommandRequest) (*ingestion.SubmitReceipt, error)

	GetVault(context.Context, *GetVaultRequest) (*query.VaultResponse, error)
	ListVaults(context.Context, *ListVaultsRequest) (*ListVaultsResponse, error)
	GetDepositor(context.Context, *GetDepositorRequest) (*query.DepositorResponse, error)
	ListDepositors(context.Context, *ListDepositorsRequest) (*ListDepositorsResponse, error)
	GetFeeUpdate(context.Context, *GetFeeUpdateRequest) (*query.FeeUpdateResponse, error)
	ListFuelHistory(context.Context, *ListFuelHistoryRequest) (*ListFuelHistoryResponse, error)
	ListJournals(context.Context, *ListJournalsRequest) (*ListJournalsResponse, error)

	VerifyIntegrity(context.Context, *Empty) (*query.IntegrityReport, error)
	TakeSnapshot(context.Context, *Empty) (*SnapshotResponse, error)
	RebuildProjections(context.Context, *Empty) (*RebuildResponse, error)
	GetLogInfo(context.Context, *Empty) (*LogInfoResponse, error)
}

// adminMethods require the admin token.
var adminMethods = map[string]bool{
	"/" + serviceName + "/TakeSnapshot":       true,
	"/" + serviceName + "/RebuildProjections": true,
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// unary builds the method descriptor for one request/response call.
func unary[Req, Resp any](name string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(LedgerServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitCommand", LedgerServer.SubmitCommand),
		unary("GetVault", LedgerServer.GetVault),
		unary("ListVaults", LedgerServer.ListVaults),
		unary("GetDepositor", LedgerServer.GetDepositor),
		unary("ListDepositors", LedgerServer.ListDepositors),
		unary("GetFeeUpdate", LedgerServer.GetFeeUpdate),
		unary("ListFuelHistory", LedgerServer.ListFuelHistory),
		unary("ListJournals", LedgerServer.ListJournals),
		unary("VerifyIntegrity", LedgerServer.VerifyIntegrity),
		unary("TakeSnapshot", LedgerServer.TakeSnapshot),
		unary("RebuildProjections", LedgerServer.RebuildProjections),
		unary("GetLogInfo", LedgerServer.GetLogInfo),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterLedgerServer registers srv on s.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}
