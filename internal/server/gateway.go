package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/status"
)

const maxCommandBody = 1 << 20

// gateway serves the ledger over HTTP/JSON on a grpc-gateway mux, calling the service
// in process.
type gateway struct {
	srv        LedgerServer
	adminToken string
}

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *gateway) register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, pattern string
		h               runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/commands/{command_type}", g.submitCommand},
		{http.MethodGet, "/v1/vaults", g.listVaults},
		{http.MethodGet, "/v1/vaults/{vault_id}", g.getVault},
		{http.MethodGet, "/v1/vaults/{vault_id}/depositors", g.listDepositors},
		{http.MethodGet, "/v1/vaults/{vault_id}/depositors/{authority}", g.getDepositor},
		{http.MethodGet, "/v1/vaults/{vault_id}/fee-update", g.getFeeUpdate},
		{http.MethodGet, "/v1/vaults/{vault_id}/fuel", g.listFuel},
		{http.MethodGet, "/v1/vaults/{vault_id}/journals", g.listJournals},
		{http.MethodGet, "/v1/admin/integrity", g.verifyIntegrity},
		{http.MethodGet, "/v1/admin/log", g.logInfo},
		{http.MethodPost, "/v1/admin/snapshot", g.takeSnapshot},
		{http.MethodPost, "/v1/admin/rebuild", g.rebuild},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.h); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, resp interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		st := status.Convert(toStatus(err))
		w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
		_ = json.NewEncoder(w).Encode(httpError{Code: st.Code().String(), Message: st.Message()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func queryInt(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, invalidArg("invalid %s: %v", key, err)
	}
	return n, nil
}

func (g *gateway) submitCommand(w http.ResponseWriter, r *http.Request, params map[string]string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		writeJSON(w, nil, invalidArg("read body: %v", err))
		return
	}
	resp, err := g.srv.SubmitCommand(r.Context(), &SubmitCommandRequest{
		CommandType: params["command_type"],
		Payload:     body,
	})
	writeJSON(w, resp, err)
}

func (g *gateway) listVaults(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	resp, err := g.srv.ListVaults(r.Context(), &ListVaultsRequest{Limit: int(limit), After: r.URL.Query().Get("after")})
	writeJSON(w, resp, err)
}

func (g *gateway) getVault(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.srv.GetVault(r.Context(), &GetVaultRequest{VaultID: params["vault_id"]})
	writeJSON(w, resp, err)
}

func (g *gateway) listDepositors(w http.ResponseWriter, r *http.Request, params map[string]string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	resp, err := g.srv.ListDepositors(r.Context(), &ListDepositorsRequest{
		VaultID: params["vault_id"],
		Limit:   int(limit),
		After:   r.URL.Query().Get("after"),
	})
	writeJSON(w, resp, err)
}

func (g *gateway) getDepositor(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.srv.GetDepositor(r.Context(), &GetDepositorRequest{
		VaultID:   params["vault_id"],
		Authority: params["authority"],
		Tokenized: r.URL.Query().Get("tokenized") == "true",
	})
	writeJSON(w, resp, err)
}

func (g *gateway) getFeeUpdate(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.srv.GetFeeUpdate(r.Context(), &GetFeeUpdateRequest{VaultID: params["vault_id"]})
	writeJSON(w, resp, err)
}

func (g *gateway) listFuel(w http.ResponseWriter, r *http.Request, params map[string]string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	before, err := queryInt(r, "before")
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	resp, err := g.srv.ListFuelHistory(r.Context(), &ListFuelHistoryRequest{
		VaultID:   params["vault_id"],
		Authority: r.URL.Query().Get("authority"),
		Limit:     int(limit),
		Before:    before,
	})
	writeJSON(w, resp, err)
}

func (g *gateway) listJournals(w http.ResponseWriter, r *http.Request, params map[string]string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	before, err := queryInt(r, "before")
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	resp, err := g.srv.ListJournals(r.Context(), &ListJournalsRequest{
		VaultID: params["vault_id"],
		Owner:   r.URL.Query().Get("owner"),
		Limit:   int(limit),
		Before:  before,
	})
	writeJSON(w, resp, err)
}

func (g *gateway) verifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.srv.VerifyIntegrity(r.Context(), &Empty{})
	writeJSON(w, resp, err)
}

func (g *gateway) logInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.srv.GetLogInfo(r.Context(), &Empty{})
	writeJSON(w, resp, err)
}

func (g *gateway) takeSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	g.admin(w, r, func(ctx context.Context) (interface{}, error) {
		return g.srv.TakeSnapshot(ctx, &Empty{})
	})
}

func (g *gateway) rebuild(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	g.admin(w, r, func(ctx context.Context) (interface{}, error) {
		return g.srv.RebuildProjections(ctx, &Empty{})
	})
}

func (g *gateway) admin(w http.ResponseWriter, r *http.Request, call func(context.Context) (interface{}, error)) {
	if err := checkAdminToken(g.adminToken, r.Header.Get("Authorization")); err != nil {
		writeJSON(w, nil, err)
		return
	}
	resp, err := call(r.Context())
	writeJSON(w, resp, err)
}
