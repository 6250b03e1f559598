package chain

// NewM1Client builds a Client against the M1 rail's own Esplora-shaped
// explorer API. M1 exposes the identical REST surface as the BTC
// backend (UTXO model, same JSON shapes), so it reuses UTXOClient
// wholesale rather than duplicating the HTTP plumbing — only the base
// URL differs, and the LP operator always points it at M1's explorer,
// never BTC's.
func NewM1Client(baseURL string) *UTXOClient {
	return NewUTXOClient(baseURL)
}
