package domain

// Task statuses. Funded is the only entry state; Completed, Cancelled and
// Resolved are terminal.
const (
	StatusFunded     = "funded"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDisputed   = "disputed"
	StatusCancelled  = "cancelled"
	StatusResolved   = "resolved"
)

// Task is the authoritative escrow record for one funded task. Amounts are in
// the smallest unit of the escrowed asset.
type Task struct {
	ID             int64   `json:"id"`
	Client         string  `json:"client"`
	TotalAmount    int64   `json:"total_amount"`
	ReleasedAmount int64   `json:"released_amount"`
	Status         string  `json:"status" enum:"funded,in_progress,completed,disputed,cancelled,resolved"`
	DisputedBy     *string `json:"disputed_by,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// SubtaskPayment records the settlement of one subtask. Amount is the gross
// figure before the fee split; once Paid is set the key is settled for good.
type SubtaskPayment struct {
	TaskID       int64  `json:"task_id"`
	SubtaskIndex int64  `json:"subtask_index"`
	Worker       string `json:"worker"`
	Amount       int64  `json:"amount"`
	Paid         bool   `json:"paid"`
	PaidAt       string `json:"paid_at,omitempty" format:"date-time"`
}

// FeePolicy is the single mutable fee configuration consulted on every
// release. Bps is on the 10000 = 100% scale.
type FeePolicy struct {
	Bps       int64  `json:"bps"`
	Recipient string `json:"recipient"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Admin is one member of the platform admin set.
type Admin struct {
	Account   string `json:"account"`
	GrantedBy string `json:"granted_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Artifact is one provenance registry entry. Registration is append-only;
// entries are never updated or removed.
type Artifact struct {
	ID           string   `json:"id"`
	ContentHash  string   `json:"content_hash"`
	Contributors []string `json:"contributors"`
	RegisteredBy string   `json:"registered_by"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// Event is one entry of the append-only audit trail.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	TaskID  int64  `json:"task_id,omitempty"`
	Actor   string `json:"actor"`
	Payload string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	Account   string `json:"account"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
