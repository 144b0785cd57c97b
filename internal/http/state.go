package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"roamlotto/internal/ether"
	"roamlotto/internal/gateway"
	"roamlotto/internal/journal"
	"roamlotto/internal/logging"
)

type StateHandler struct {
	*Deps
}

type stateResp struct {
	Address          string                  `json:"address,omitempty"`
	ShortAddress     string                  `json:"short_address,omitempty"`
	Connected        bool                    `json:"connected"`
	NetworkID        string                  `json:"network_id,omitempty"`
	NetworkError     string                  `json:"network_error,omitempty"`
	Balance          string                  `json:"balance"`
	Pending          []gateway.PendingAction `json:"pending"`
	TransactionError string                  `json:"transaction_error,omitempty"`
	Busy             bool                    `json:"busy"`
}

func buildState(_ context.Context, d *Deps) stateResp {
	st := d.Session.State()
	snap := d.Gateway.Snapshot()
	resp := stateResp{
		Connected:        st.Connected,
		NetworkID:        st.NetworkID,
		NetworkError:     st.NetworkError,
		Balance:          snap.Balance,
		Pending:          snap.Pending,
		TransactionError: snap.TransactionError,
		Busy:             snap.Busy,
	}
	if st.Connected {
		resp.Address = st.AddressHex()
		resp.ShortAddress = ether.ShortAddress(resp.Address)
	}
	return resp
}

func (h *StateHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildState(r.Context(), h.Deps))
}

// Winnings re-reads the payable balance from the contract.
func (h *StateHandler) Winnings(w http.ResponseWriter, r *http.Request) {
	if !h.Session.State().Connected {
		writeError(w, r, gateway.ErrNotConnected)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]string{"balance": h.Gateway.ViewWinnings(ctx)})
}

func (h *StateHandler) LotteryInfo(w http.ResponseWriter, r *http.Request) {
	if h.Deps.Lottery == nil {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	info, err := h.Deps.Lottery.Info(ctx, h.Session.State().Address)
	if err != nil {
		logging.From(r.Context()).Warn("http.lottery", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResp{Error: "could not read the lottery"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *StateHandler) ActionHistory(w http.ResponseWriter, r *http.Request) {
	st := h.Session.State()
	account := r.URL.Query().Get("account")
	if account == "" && st.Connected {
		account = st.AddressHex()
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := h.Deps.History.Recent(ctx, account, limit)
	if err != nil {
		logging.From(r.Context()).Warn("http.history", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResp{Error: "could not read history"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
