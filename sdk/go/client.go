package flowescrowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Flowescrow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID             int64   `json:"id"`
	Client         string  `json:"client"`
	TotalAmount    int64   `json:"total_amount"`
	ReleasedAmount int64   `json:"released_amount"`
	Status         string  `json:"status"`
	DisputedBy     *string `json:"disputed_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// SubtaskPayment represents one settled subtask release.
type SubtaskPayment struct {
	TaskID       int64  `json:"task_id"`
	SubtaskIndex int64  `json:"subtask_index"`
	Worker       string `json:"worker"`
	Amount       int64  `json:"amount"`
	Paid         bool   `json:"paid"`
	PaidAt       string `json:"paid_at,omitempty"`
}

// FeePolicy represents the platform fee configuration.
type FeePolicy struct {
	Bps       int64  `json:"bps"`
	Recipient string `json:"recipient"`
	UpdatedAt string `json:"updated_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	TaskID  int64          `json:"task_id,omitempty"`
	Actor   string         `json:"actor,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Artifact represents a provenance registry entry.
type Artifact struct {
	ID           string   `json:"id"`
	ContentHash  string   `json:"content_hash"`
	Contributors []string `json:"contributors,omitempty"`
	RegisteredBy string   `json:"registered_by"`
	CreatedAt    string   `json:"created_at"`
}

// Balance represents one account's ledger balance.
type Balance struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Fund escrows amount and creates a new task.
func (c *Client) Fund(ctx context.Context, amount int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v1/tasks", map[string]any{"amount": amount}, &resp)
	return resp, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, taskID int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/tasks/%d", taskID), nil, &resp)
	return resp, err
}

// GetSubtaskPayment fetches one subtask payment record.
func (c *Client) GetSubtaskPayment(ctx context.Context, taskID, subtaskIndex int64) (SubtaskPayment, error) {
	var resp SubtaskPayment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/tasks/%d/payments/%d", taskID, subtaskIndex), nil, &resp)
	return resp, err
}

// ApproveSubtask releases a slice of the escrowed budget to the worker.
func (c *Client) ApproveSubtask(ctx context.Context, taskID, subtaskIndex int64, worker string, amount int64) (SubtaskPayment, error) {
	body := map[string]any{
		"subtask_index": subtaskIndex,
		"worker":        worker,
		"amount":        amount,
	}
	var resp SubtaskPayment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/tasks/%d/approve", taskID), body, &resp)
	return resp, err
}

// CompleteTask closes a task, refunding any unreleased remainder.
func (c *Client) CompleteTask(ctx context.Context, taskID int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/tasks/%d/complete", taskID), nil, &resp)
	return resp, err
}

// CancelTask refunds the full escrow before any release.
func (c *Client) CancelTask(ctx context.Context, taskID int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/tasks/%d/cancel", taskID), nil, &resp)
	return resp, err
}

// RaiseDispute freezes the task pending admin resolution.
func (c *Client) RaiseDispute(ctx context.Context, taskID int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/tasks/%d/dispute", taskID), nil, &resp)
	return resp, err
}

// ResolveDispute splits the remaining escrow between winner and client.
func (c *Client) ResolveDispute(ctx context.Context, taskID int64, winner string, winnerAmount int64) (Task, error) {
	body := map[string]any{
		"winner":        winner,
		"winner_amount": winnerAmount,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v1/tasks/%d/resolve", taskID), body, &resp)
	return resp, err
}

// FeePolicy fetches the current fee configuration.
func (c *Client) FeePolicy(ctx context.Context) (FeePolicy, error) {
	var resp FeePolicy
	err := c.do(ctx, http.MethodGet, "v1/fee", nil, &resp)
	return resp, err
}

// Events fetches the newest audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/events?limit=%d", limit), nil, &resp)
	return resp, err
}

// RegisterArtifact records a provenance entry.
func (c *Client) RegisterArtifact(ctx context.Context, id, contentHash string, contributors []string) (Artifact, error) {
	body := map[string]any{
		"id":           id,
		"content_hash": contentHash,
		"contributors": contributors,
	}
	var resp Artifact
	err := c.do(ctx, http.MethodPost, "v1/artifacts", body, &resp)
	return resp, err
}

// GetBalance fetches one account's ledger balance.
func (c *Client) GetBalance(ctx context.Context, account string) (Balance, error) {
	var resp Balance
	err := c.do(ctx, http.MethodGet, "v1/accounts/"+account+"/balance", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
