package server

import (
	"context"

	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/query"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ledgerServer struct {
	ingest *ingestion.GRPCIngestService
	query  *query.QueryService
	admin  *Admin
}

var _ LedgerServer = (*ledgerServer)(nil)

func parseVault(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, invalidArg("vault_id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, invalidArg("invalid vault_id: %v", err)
	}
	return id, nil
}

func (s *ledgerServer) readModel() (*query.QueryService, error) {
	if s.query == nil {
		return nil, status.Error(codes.Unavailable, "read model not configured")
	}
	return s.query, nil
}

func (s *ledgerServer) operator() (*Admin, error) {
	if s.admin == nil {
		return nil, status.Error(codes.Unavailable, "admin operations not configured")
	}
	return s.admin, nil
}

func (s *ledgerServer) SubmitCommand(ctx context.Context, req *SubmitCommandRequest) (*ingestion.SubmitReceipt, error) {
	if req.CommandType == "" {
		return nil, invalidArg("command_type is required")
	}
	if len(req.Payload) == 0 {
		return nil, invalidArg("payload is required")
	}
	receipt, err := s.ingest.SubmitCommand(ctx, req.CommandType, req.Payload)
	return receipt, toStatus(err)
}

func (s *ledgerServer) GetVault(ctx context.Context, req *GetVaultRequest) (*query.VaultResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	id, err := parseVault(req.VaultID)
	if err != nil {
		return nil, err
	}
	v, err := qs.GetVault(ctx, id)
	return v, toStatus(err)
}

func (s *ledgerServer) ListVaults(ctx context.Context, req *ListVaultsRequest) (*ListVaultsResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	var after *uuid.UUID
	if req.After != "" {
		id, err := uuid.Parse(req.After)
		if err != nil {
			return nil, invalidArg("invalid after: %v", err)
		}
		after = &id
	}
	vaults, err := qs.ListVaults(ctx, req.Limit, after)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListVaultsResponse{Vaults: vaults}, nil
}

func (s *ledgerServer) GetDepositor(ctx context.Context, req *GetDepositorRequest) (*query.DepositorResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	id, err := parseVault(req.VaultID)
	if err != nil {
		return nil, err
	}
	if req.Authority == "" {
		return nil, invalidArg("authority is required")
	}
	d, err := qs.GetDepositor(ctx, id, req.Authority, req.Tokenized)
	return d, toStatus(err)
}

func (s *ledgerServer) ListDepositors(ctx context.Context, req *ListDepositorsRequest) (*ListDepositorsResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	id, err := parseVault(req.VaultID)
	if err != nil {
		return nil, err
	}
	out, err := qs.ListDepositors(ctx, id, req.Limit, req.After)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListDepositorsResponse{Depositors: out}, nil
}

func (s *ledgerServer) GetFeeUpdate(ctx context.Context, req *GetFeeUpdateRequest) (*query.FeeUpdateResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	id, err := parseVault(req.VaultID)
	if err != nil {
		return nil, err
	}
	f, err := qs.GetFeeUpdate(ctx, id)
	return f, toStatus(err)
}

func (s *ledgerServer) ListFuelHistory(ctx context.Context, req *ListFuelHistoryRequest) (*ListFuelHistoryResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	id, err := parseVault(req.VaultID)
	if err != nil {
		return nil, err
	}
	var authority *string
	if req.Authority != "" {
		authority = &req.Authority
	}
	var before *int64
	if req.Before > 0 {
		before = &req.Before
	}
	out, err := qs.GetFuelHistory(ctx, id, authority, req.Limit, before)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListFuelHistoryResponse{Entries: out}, nil
}

func (s *ledgerServer) ListJournals(ctx context.Context, req *ListJournalsRequest) (*ListJournalsResponse, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	id, err := parseVault(req.VaultID)
	if err != nil {
		return nil, err
	}
	var before *int64
	if req.Before > 0 {
		before = &req.Before
	}
	out, err := qs.GetJournalHistory(ctx, id, req.Owner, req.Limit, before)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListJournalsResponse{Journals: out}, nil
}

func (s *ledgerServer) VerifyIntegrity(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	qs, err := s.readModel()
	if err != nil {
		return nil, err
	}
	r, err := qs.VerifyIntegrity(ctx)
	return r, toStatus(err)
}

func (s *ledgerServer) TakeSnapshot(ctx context.Context, _ *Empty) (*SnapshotResponse, error) {
	a, err := s.operator()
	if err != nil {
		return nil, err
	}
	r, err := a.TakeSnapshot(ctx)
	return r, toStatus(err)
}

func (s *ledgerServer) RebuildProjections(ctx context.Context, _ *Empty) (*RebuildResponse, error) {
	a, err := s.operator()
	if err != nil {
		return nil, err
	}
	r, err := a.RebuildProjections(ctx)
	return r, toStatus(err)
}

func (s *ledgerServer) GetLogInfo(ctx context.Context, _ *Empty) (*LogInfoResponse, error) {
	a, err := s.operator()
	if err != nil {
		return nil, err
	}
	r, err := a.LogInfo(ctx)
	return r, toStatus(err)
}
