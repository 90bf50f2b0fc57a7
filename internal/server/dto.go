package server

import (
	"encoding/json"

	"flowescrow/internal/domain"
)

type taskPayload struct {
	ID             int64   `json:"id" doc:"Task identifier"`
	Client         string  `json:"client" doc:"Account that funded the task"`
	TotalAmount    int64   `json:"total_amount" doc:"Escrowed budget"`
	ReleasedAmount int64   `json:"released_amount" doc:"Amount already released to workers"`
	Status         string  `json:"status" enum:"funded,in_progress,completed,cancelled,disputed,resolved"`
	DisputedBy     *string `json:"disputed_by,omitempty" doc:"Account that raised the open or resolved dispute"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toTaskPayload(t domain.Task) taskPayload {
	return taskPayload{
		ID:             t.ID,
		Client:         t.Client,
		TotalAmount:    t.TotalAmount,
		ReleasedAmount: t.ReleasedAmount,
		Status:         string(t.Status),
		DisputedBy:     t.DisputedBy,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type subtaskPaymentPayload struct {
	TaskID       int64  `json:"task_id"`
	SubtaskIndex int64  `json:"subtask_index"`
	Worker       string `json:"worker"`
	Amount       int64  `json:"amount" doc:"Gross amount before fee deduction"`
	Paid         bool   `json:"paid"`
	PaidAt       string `json:"paid_at,omitempty"`
}

func toSubtaskPaymentPayload(p domain.SubtaskPayment) subtaskPaymentPayload {
	return subtaskPaymentPayload{
		TaskID:       p.TaskID,
		SubtaskIndex: p.SubtaskIndex,
		Worker:       p.Worker,
		Amount:       p.Amount,
		Paid:         p.Paid,
		PaidAt:       p.PaidAt,
	}
}

type feePolicyPayload struct {
	Bps       int64  `json:"bps" doc:"Platform fee in basis points"`
	Recipient string `json:"recipient" doc:"Account receiving collected fees"`
	UpdatedAt string `json:"updated_at"`
}

func toFeePolicyPayload(p domain.FeePolicy) feePolicyPayload {
	return feePolicyPayload{Bps: p.Bps, Recipient: p.Recipient, UpdatedAt: p.UpdatedAt}
}

type eventPayload struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	TaskID  int64          `json:"task_id,omitempty"`
	Actor   string         `json:"actor,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func toEventPayload(e domain.Event) eventPayload {
	out := eventPayload{ID: e.ID, TS: e.TS, Type: e.Type, TaskID: e.TaskID, Actor: e.Actor}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &out.Payload)
	}
	return out
}

type artifactPayload struct {
	ID           string   `json:"id"`
	ContentHash  string   `json:"content_hash"`
	Contributors []string `json:"contributors,omitempty"`
	RegisteredBy string   `json:"registered_by"`
	CreatedAt    string   `json:"created_at"`
}

func toArtifactPayload(a domain.Artifact) artifactPayload {
	return artifactPayload{
		ID:           a.ID,
		ContentHash:  a.ContentHash,
		Contributors: a.Contributors,
		RegisteredBy: a.RegisteredBy,
		CreatedAt:    a.CreatedAt,
	}
}
