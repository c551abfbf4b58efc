package walletprovider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/amount"
	"github.com/tossd/tossd/internal/tosserr"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// HTTPProvider is a Provider backed by an external custodial wallet
// service reachable over HTTPS, authenticated with a credential pair.
type HTTPProvider struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

// NewHTTPProvider returns a Provider that calls baseURL, authenticating
// with the given credential pair.
func NewHTTPProvider(baseURL, keyID, keySecret string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *HTTPProvider) do(method, path string, reqBody, respBody interface{}) error {
	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return err
		}
	}

	httpReq, err := http.NewRequest(method, p.baseURL+path, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(p.keyID, p.keySecret)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		log.Errorf("walletprovider: %s %s: %v", method, path, err)
		return tosserr.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if respBody == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(respBody)
	case http.StatusNotFound:
		return tosserr.ErrNotFound
	case http.StatusPaymentRequired, http.StatusConflict:
		return tosserr.ErrInsufficientFunds
	case http.StatusUnprocessableEntity:
		return tosserr.ErrInvalidAddress
	default:
		log.Errorf("walletprovider: %s %s: status %d", method, path, resp.StatusCode)
		return tosserr.ErrProviderUnavailable
	}
}

// Create implements Provider.
func (p *HTTPProvider) Create(userId string) (Wallet, error) {
	var w Wallet
	err := p.do(http.MethodPost, "/wallets/"+userId, nil, &w)
	return w, err
}

// Load implements Provider.
func (p *HTTPProvider) Load(userId string) (Wallet, error) {
	var w Wallet
	err := p.do(http.MethodGet, "/wallets/"+userId, nil, &w)
	return w, err
}

// Balance implements Provider.
func (p *HTTPProvider) Balance(userId string) (amount.Amount, error) {
	var resp struct {
		Balance float64 `json:"balance"`
	}
	if err := p.do(http.MethodGet, "/wallets/"+userId+"/balance", nil, &resp); err != nil {
		return 0, err
	}
	return amount.FromStake(resp.Balance), nil
}

// Transfer implements Provider.
func (p *HTTPProvider) Transfer(fromUserId, toAddress string, amt amount.Amount) (TransferResult, error) {
	if amt.ToStake() > amount.MaxStake {
		return TransferResult{}, tosserr.ErrAmountTooLarge
	}

	reqBody := struct {
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}{To: toAddress, Amount: amt.ToStake()}

	var resp struct {
		Hash string `json:"hash"`
		Link string `json:"link"`
	}
	err := p.do(http.MethodPost, fmt.Sprintf("/wallets/%s/transfers", fromUserId), reqBody, &resp)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Hash: resp.Hash, Link: resp.Link}, nil
}
