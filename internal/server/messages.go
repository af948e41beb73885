package server

import (
	"encoding/json"

	"VaultLedger/internal/query"
)

type SubmitCommandRequest struct {
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
}

type GetVaultRequest struct {
	VaultID string `json:"vault_id"`
}

type ListVaultsRequest struct {
	Limit int    `json:"limit,omitempty"`
	After string `json:"after,omitempty"`
}

type ListVaultsResponse struct {
	Vaults []query.VaultResponse `json:"vaults"`
}

type GetDepositorRequest struct {
	VaultID   string `json:"vault_id"`
	Authority string `json:"authority"`
	Tokenized bool   `json:"tokenized,omitempty"`
}

type ListDepositorsRequest struct {
	VaultID string `json:"vault_id"`
	Limit   int    `json:"limit,omitempty"`
	After   string `json:"after,omitempty"`
}

type ListDepositorsResponse struct {
	Depositors []query.DepositorResponse `json:"depositors"`
}

type GetFeeUpdateRequest struct {
	VaultID string `json:"vault_id"`
}

type ListFuelHistoryRequest struct {
	VaultID   string `json:"vault_id"`
	Authority string `json:"authority,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Before    int64  `json:"before,omitempty"`
}

type ListFuelHistoryResponse struct {
	Entries []query.FuelHistoryEntry `json:"entries"`
}

type ListJournalsRequest struct {
	VaultID string `json:"vault_id"`
	Owner   string `json:"owner,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Before  int64  `json:"before,omitempty"`
}

type ListJournalsResponse struct {
	Journals []query.JournalHistoryEntry `json:"journals"`
}

type Empty struct{}

type SnapshotResponse struct {
	Sequence  int64 `json:"sequence"`
	SizeBytes int   `json:"size_bytes"`
}

type RebuildResponse struct {
	CommandsReplayed    int64 `json:"commands_replayed"`
	ProjectionWatermark int64 `json:"projection_watermark"`
}

type LogInfoResponse struct {
	EngineSequence      int64  `json:"engine_sequence"`
	LastPersisted       int64  `json:"last_persisted"`
	HeadStateHash       string `json:"head_state_hash,omitempty"`
	ProjectionWatermark int64  `json:"projection_watermark"`
}
