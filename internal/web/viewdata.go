package web

// HeaderData is rendered by the shared header partial on every page.
type HeaderData struct {
	// AuthEnabled is set when the dashboard is password protected.
	AuthEnabled   bool
	Authenticated bool
	Connected     bool
	Address       string
	NetworkID     string
	NetworkName   string
	Balance       string
}

// Page wraps shared Header + page-specific Content.
type Page[T any] struct {
	Header  HeaderData
	Content T
}

// PendingView is one in-flight action. TxHash is empty until the wallet
// has accepted the transaction.
type PendingView struct {
	Kind   string
	Phase  string
	TxHash string
}
