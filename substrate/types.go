package substrate

// FacilitatorSettleRequest is the body POSTed to the settlement delegate:
// the payment intent fields plus the signature and the target network.
type FacilitatorSettleRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	Nonce      string `json:"nonce"`
	ValidUntil uint64 `json:"validUntil"`
	Asset      string `json:"asset,omitempty"`
	Signature  string `json:"signature"`
	Network    string `json:"network"`
}

// FacilitatorSettleResponse is what the delegate reports back after
// attempting the transfer on-chain.
type FacilitatorSettleResponse struct {
	OK            bool   `json:"ok"`
	Confirmed     bool   `json:"confirmed,omitempty"`
	Error         string `json:"error,omitempty"`
	BlockNumber   uint64 `json:"blockNumber,omitempty"`
	BlockHash     string `json:"blockHash,omitempty"`
	ExtrinsicHash string `json:"extrinsicHash,omitempty"`
}
