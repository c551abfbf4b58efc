// Package tossparser adapts the out-of-scope natural-language toss parser
// to agent.TossParser: a thin HTTP client to an external LLM-backed service
// that turns free text into {topic, options[2], amount}. The parsing model
// itself is out of scope; only the call shape is implemented here,
// following the same net/http request/response idiom as
// walletprovider.HTTPProvider.
package tossparser

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/agent"
	"github.com/tossd/tossd/internal/amount"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Client calls an external LLM provider to parse free-text toss prompts.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New returns a Client calling endpoint with apiKey as a bearer credential.
func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

type parseRequest struct {
	Prompt string `json:"prompt"`
}

type parseResponse struct {
	Topic   string   `json:"topic"`
	Options []string `json:"options"`
	Stake   float64  `json:"stake"`
	Error   string   `json:"error"`
}

// Parse implements agent.TossParser.
func (c *Client) Parse(text string) (*agent.ParsedToss, *agent.ParseError) {
	body, err := json.Marshal(parseRequest{Prompt: text})
	if err != nil {
		return nil, &agent.ParseError{Reason: "could not encode prompt"}
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &agent.ParseError{Reason: "could not build request"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("tossparser: request failed: %v", err)
		return nil, &agent.ParseError{Reason: "parser service unavailable"}
	}
	defer resp.Body.Close()

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &agent.ParseError{Reason: "parser service returned an unreadable response"}
	}
	if parsed.Error != "" {
		return nil, &agent.ParseError{Reason: parsed.Error}
	}
	if parsed.Topic == "" || len(parsed.Options) != 2 {
		return nil, &agent.ParseError{Reason: "could not identify a topic with two outcomes"}
	}

	stake := parsed.Stake
	if stake <= 0 {
		stake = amount.DefaultStake
	}

	return &agent.ParsedToss{
		Topic:   parsed.Topic,
		Options: [2]string{parsed.Options[0], parsed.Options[1]},
		Stake:   amount.FromStake(stake),
	}, nil
}
