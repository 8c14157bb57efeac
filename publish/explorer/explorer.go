// Package explorer submits contract source verification to an
// Etherscan-compatible API and tracks the result.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second

	statusPending  = "pending in queue"
	statusPass     = "pass - verified"
	statusVerified = "already verified"
	codeFormatJSON = "solidity-standard-json-input"
)

var (
	ErrRejected = errors.New("explorer rejected request")
	ErrFailed   = errors.New("verification failed")
)

type (
	Submission struct {
		Address         common.Address
		ContractName    string // "<source>:<name>"
		CompilerVersion string // solc long version, e.g. 0.8.10+commit.fc410830
		StandardInput   json.RawMessage
		ConstructorArgs []byte
	}

	Status struct {
		Pending  bool
		Verified bool
		Message  string
	}

	Client struct {
		apiURL       string
		apiKey       string
		http         *http.Client
		log          *zap.Logger
		pollInterval time.Duration
	}

	response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
)

func NewClient(apiURL, apiKey string, log *zap.Logger) *Client {
	return &Client{
		apiURL:       apiURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval sets the status polling interval. Non-positive values
// keep the current one.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	if d > 0 {
		c.pollInterval = d
	}
	return c
}

// Verify submits s and returns the explorer's job id. A contract that is
// already verified returns an empty id and no error.
func (c *Client) Verify(ctx context.Context, s Submission) (string, error) {
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", s.Address.Hex())
	form.Set("sourceCode", string(s.StandardInput))
	form.Set("codeformat", codeFormatJSON)
	form.Set("contractname", s.ContractName)
	form.Set("compilerversion", "v"+strings.TrimPrefix(s.CompilerVersion, "v"))
	// The misspelling is part of the Etherscan API.
	form.Set("constructorArguements", common.Bytes2Hex(s.ConstructorArgs))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	if resp.Status != "1" {
		if strings.Contains(strings.ToLower(resp.Result), statusVerified) {
			c.log.Info("contract already verified", zap.Stringer("address", s.Address))
			return "", nil
		}
		return "", fmt.Errorf("%w: %s: %s", ErrRejected, resp.Message, resp.Result)
	}
	c.log.Info("verification submitted", zap.Stringer("address", s.Address), zap.String("guid", resp.Result))
	return resp.Result, nil
}

func (c *Client) Status(ctx context.Context, guid string) (Status, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return Status{}, err
	}

	result := strings.ToLower(resp.Result)
	switch {
	case strings.HasPrefix(result, statusPending):
		return Status{Pending: true, Message: resp.Result}, nil
	case strings.HasPrefix(result, statusPass), strings.Contains(result, statusVerified):
		return Status{Verified: true, Message: resp.Result}, nil
	default:
		return Status{Message: resp.Result}, nil
	}
}

// Wait polls guid until the explorer reaches a verdict or ctx ends.
func (c *Client) Wait(ctx context.Context, guid string) (Status, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx, guid)
		if err != nil {
			return Status{}, err
		}
		if !st.Pending {
			if !st.Verified {
				return st, fmt.Errorf("%w: %s", ErrFailed, st.Message)
			}
			return st, nil
		}
		c.log.Debug("verification pending", zap.String("guid", guid))

		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request) (response, error) {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("explorer request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return response{}, fmt.Errorf("read explorer response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return response{}, fmt.Errorf("%w: http %d: %s", ErrRejected, httpResp.StatusCode, strings.TrimSpace(string(body)))
	}
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return response{}, fmt.Errorf("decode explorer response: %w", err)
	}
	return resp, nil
}
