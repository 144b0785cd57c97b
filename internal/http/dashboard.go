package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"roamlotto/internal/journal"
	"roamlotto/internal/logging"
	"roamlotto/internal/lottery"
	"roamlotto/internal/web"
)

type DashboardHandler struct {
	*Deps
}

type dashboardContent struct {
	Title            string
	NetworkError     string
	TransactionError string
	Notice           string
	TicketPrice      string
	Busy             bool
	Pending          []web.PendingView
	Lottery          *lottery.Info
	History          []journal.Entry
}

type loginContent struct {
	Title  string
	Status string
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := loadHeader(r, h.Deps)
	if !header.Authenticated {
		h.render(w, r, "login", web.Page[loginContent]{
			Header:  header,
			Content: loginContent{Title: "Unlock", Status: r.URL.Query().Get("login")},
		})
		return
	}

	st := h.Session.State()
	snap := h.Gateway.Snapshot()
	content := dashboardContent{
		Title:            "Lottery",
		NetworkError:     st.NetworkError,
		TransactionError: snap.TransactionError,
		Notice:           noticeText(r.URL.Query().Get("notice")),
		TicketPrice:      h.TicketPrice,
		Busy:             snap.Busy,
	}
	for _, p := range snap.Pending {
		v := web.PendingView{Kind: string(p.Kind), Phase: string(p.Phase)}
		if p.TxHash != nil {
			v.TxHash = p.TxHash.Hex()
		}
		content.Pending = append(content.Pending, v)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if h.Lottery != nil {
		info, err := h.Lottery.Info(ctx, st.Address)
		if err != nil {
			logging.From(r.Context()).Warn("http.dashboard.lottery", "err", err)
		} else {
			content.Lottery = &info
		}
	}
	if st.Connected {
		entries, err := h.History.Recent(ctx, st.AddressHex(), 10)
		if err != nil {
			logging.From(r.Context()).Warn("http.dashboard.history", "err", err)
		}
		content.History = entries
	}

	h.render(w, r, "dashboard", web.Page[dashboardContent]{Header: header, Content: content})
}

func (h *DashboardHandler) render(w http.ResponseWriter, r *http.Request, name string, page any) {
	var buf bytes.Buffer
	if err := h.TPL.Render(&buf, name, page); err != nil {
		logging.From(r.Context()).Error("http.render", "page", name, "err", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
