package http

import (
	"net/http"

	"roamlotto/internal/http/middleware"
	"roamlotto/internal/web"
)

func loadHeader(r *http.Request, d *Deps) web.HeaderData {
	st := d.Session.State()
	header := web.HeaderData{
		AuthEnabled:   d.Auth.Enabled(),
		Authenticated: middleware.Authenticated(r),
		Connected:     st.Connected,
		NetworkID:     st.NetworkID,
		NetworkName:   d.NetworkName,
	}
	if !header.Authenticated {
		return header
	}
	if st.Connected {
		header.Address = st.AddressHex()
	}
	header.Balance = d.Gateway.Snapshot().Balance
	return header
}
