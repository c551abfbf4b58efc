// Package chainclient is a minimal EVM JSON-RPC client used by the chain
// watcher and correlation layer. No generic EVM-compatible JSON-RPC client
// appears in the example pack (rpcclient speaks only the Decred JSON-RPC
// dialect), so this talks net/http+encoding/json directly, structured on
// rpcclient's config/dial idiom: a single long-lived client wrapping one
// endpoint, exposing narrow typed methods rather than a raw Call passthrough.
package chainclient

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// TransferSelector is the 4-byte selector of ERC-20 transfer(address,uint256).
const TransferSelector = "a9059cbb"

// transferEventSignature is "Transfer(address,address,uint256)"; its
// Keccak256 hash is topic0 of every ERC-20 Transfer log.
var transferEventSignature = []byte("Transfer(address,address,uint256)")

// TransferEventTopic returns the Keccak256 topic hash ERC-20 contracts emit
// as topic0 of a Transfer event.
func TransferEventTopic() string {
	h := sha3.NewLegacyKeccak256()
	h.Write(transferEventSignature)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Client is a narrow JSON-RPC client for the handful of eth_ methods tossd
// needs.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a Client calling the JSON-RPC endpoint at rpcURL.
func New(rpcURL string) *Client {
	return &Client{
		endpoint: rpcURL,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(method string, params []interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	httpResp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("chainclient: %s: %s", method, resp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber() (uint64, error) {
	var hexStr string
	if err := c.call("eth_blockNumber", nil, &hexStr); err != nil {
		return 0, err
	}
	return parseHexUint(hexStr)
}

// Log is a single entry returned by eth_getLogs.
type Log struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumberHex  string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
}

// BlockNumber parses the log's block number.
func (l Log) BlockNumber() uint64 {
	n, _ := parseHexUint(l.BlockNumberHex)
	return n
}

// GetLogs returns Transfer events emitted by the stablecoin contract with
// "to" equal to toAddress, over [fromBlock, toBlock].
func (c *Client) GetLogs(stablecoin string, toAddress string, fromBlock, toBlock uint64) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   stablecoin,
		"fromBlock": toHex(fromBlock),
		"toBlock":   toHex(toBlock),
		"topics": []interface{}{
			TransferEventTopic(),
			nil,
			"0x" + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(toAddress), "0x"),
		},
	}

	var logs []Log
	if err := c.call("eth_getLogs", []interface{}{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Transaction is the subset of an EVM transaction tossd needs to decode an
// ERC-20 transfer call.
type Transaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Input string `json:"input"`
}

// GetTransactionByHash fetches a transaction by hash. Returns nil, nil if
// the transaction is not yet known to the node.
func (c *Client) GetTransactionByHash(hash string) (*Transaction, error) {
	var tx *Transaction
	if err := c.call("eth_getTransactionByHash", []interface{}{hash}, &tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// TransactionStatus reports whether a mined transaction succeeded.
type TransactionStatus int

const (
	// StatusPending means the receipt is not yet available.
	StatusPending TransactionStatus = iota
	// StatusSuccess means the transaction executed without reverting.
	StatusSuccess
	// StatusFailed means the transaction reverted.
	StatusFailed
)

// GetTransactionStatus fetches the receipt for hash and reports its
// execution status.
func (c *Client) GetTransactionStatus(hash string) (TransactionStatus, error) {
	var receipt *struct {
		Status string `json:"status"`
	}
	if err := c.call("eth_getTransactionReceipt", []interface{}{hash}, &receipt); err != nil {
		return StatusPending, err
	}
	if receipt == nil {
		return StatusPending, nil
	}
	switch receipt.Status {
	case "0x1":
		return StatusSuccess, nil
	case "0x0":
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

// DecodeERC20Transfer decodes the calldata of an ERC-20
// transfer(address,uint256) call. ok is false if the selector does not
// match or the data is malformed. The value word is a full 256-bit
// integer on the wire; only the low 8 bytes are kept since every amount
// tossd deals with (stakes capped at amount.MaxStake) fits comfortably in
// a uint64.
func DecodeERC20Transfer(input string) (to string, value uint64, ok bool) {
	input = strings.TrimPrefix(input, "0x")
	if len(input) < 8+64+64 {
		return "", 0, false
	}
	if input[:8] != TransferSelector {
		return "", 0, false
	}

	toWord := input[8 : 8+64]
	to = "0x" + toWord[24:]

	valueWord := input[8+64 : 8+64+64]
	valueBytes, err := hex.DecodeString(valueWord)
	if err != nil {
		return "", 0, false
	}
	var v uint64
	for _, b := range valueBytes[len(valueBytes)-8:] {
		v = v<<8 | uint64(b)
	}
	return to, v, true
}

func toHex(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}
