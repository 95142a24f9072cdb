package ton

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Moonlightintherain/q/pkg/logger"
)

// Client talks to the wallet gateway that signs and submits outgoing TON
// transfers from the casino wallet. Only withdrawals go through it.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type sendRequest struct {
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
	Memo        string  `json:"memo,omitempty"`
}

type SendResult struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash"`
	Error   string `json:"error,omitempty"`
}

func NewClient() *Client {
	baseURL, ok := os.LookupEnv("TON_WALLET_API_URL")
	if !ok {
		logger.Fatal("unable to get TON wallet API url from environment")
	}
	apiKey := os.Getenv("TON_WALLET_API_KEY")

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send submits a transfer and waits for the gateway's confirmation. A result
// with Success=false means the chain rejected it; the caller decides what
// happens to the already-debited balance.
func (c *Client) Send(destination string, amount float64, memo string) (*SendResult, error) {
	body, err := json.Marshal(sendRequest{
		Destination: destination,
		Amount:      amount,
		Memo:        memo,
	})
	if err != nil {
		return nil, logger.WrapError(err, "")
	}

	req, err := http.NewRequest("POST", c.baseURL+"/send", bytes.NewBuffer(body))
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, logger.WrapError(
			errors.New("wallet gateway returned non-200 status"),
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var result SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, logger.WrapError(err, "")
	}

	return &result, nil
}

// ViewerLink builds the explorer URL shown to users in notifications.
func ViewerLink(hash string) string {
	return "https://tonviewer.com/transaction/" + hash
}
