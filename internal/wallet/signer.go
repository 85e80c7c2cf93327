package wallet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SignTransaction is the bridge message type for signing requests.
const SignTransaction = "SIGN_TRANSACTION"

// Signer signs a transaction with the user's wallet.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) (*SignResult, error)
}

// SignRequest carries an unsigned payload as returned by the aggregator.
type SignRequest struct {
	Payload map[string]any `json:"payload"`
	Wallet  string         `json:"wallet,omitempty"`
}

// SignResult is the bridge's reply.
type SignResult struct {
	Signature string `json:"signature,omitempty"`
	Signed    any    `json:"signed,omitempty"`
	Strategy  string `json:"strategy"`
}

type bridgeMessage struct {
	Type        string `json:"type"`
	Transaction any    `json:"transaction"`
	Wallet      string `json:"wallet,omitempty"`
}

// BridgeSigner posts signing requests to a wallet bridge over HTTP.
type BridgeSigner struct {
	http *resty.Client
}

// NewBridgeSigner returns a signer for the bridge at baseURL.
func NewBridgeSigner(baseURL string, timeout time.Duration) *BridgeSigner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BridgeSigner{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

// Sign extracts the transaction from req.Payload and asks the bridge to
// sign it.
func (b *BridgeSigner) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	ex, err := ExtractTransaction(req.Payload)
	if err != nil {
		return nil, err
	}

	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(bridgeMessage{Type: SignTransaction, Transaction: ex.Data, Wallet: req.Wallet}).
		Post("/sign")
	if err != nil {
		return nil, eris.Wrap(err, "wallet: bridge request")
	}

	var reply map[string]any
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return nil, eris.Wrapf(err, "wallet: decode bridge reply (status %d)", resp.StatusCode())
	}
	if ok, _ := reply["success"].(bool); !ok {
		msg, _ := reply["error"].(string)
		if msg == "" {
			msg = resp.Status()
		}
		return nil, eris.Errorf("wallet: bridge refused to sign: %s", msg)
	}

	out := &SignResult{Strategy: ex.Strategy, Signature: signature(reply)}
	if signed, err := ExtractTransaction(reply); err == nil {
		out.Signed = signed.Data
	}
	zap.L().Info("wallet: transaction signed",
		zap.String("strategy", ex.Strategy),
		zap.Bool("has_signature", out.Signature != ""),
	)
	return out, nil
}

// signature accepts either a bare string or an object with a signature field.
func signature(reply map[string]any) string {
	switch s := reply["signature"].(type) {
	case string:
		return s
	case map[string]any:
		v, _ := s["signature"].(string)
		return v
	}
	return ""
}
