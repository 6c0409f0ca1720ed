package entity

import (
	"time"

	"github.com/garyjia/site-approval/internal/domain/workflow"
)

// Requestor identifies who raised a request. It is frozen once submitted.
type Requestor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	OrgUnitID string `json:"org_unit_id"`
}

// ApprovalRequest is one approval lifecycle instance
type ApprovalRequest struct {
	ID          string                 `json:"id"`
	Type        RequestType            `json:"type"`
	Requestor   Requestor              `json:"requestor"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Amount      *float64               `json:"amount,omitempty"`
	Priority    Priority               `json:"priority"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Attachments []string               `json:"attachments,omitempty"`

	Status      workflow.State `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	ApprovalChain        []ApprovalStep    `json:"approval_chain"`
	CurrentApproverIndex int               `json:"current_approver_index"`
	Comments             []ApprovalComment `json:"comments"`
}

// ApprovalStep is one approver's assignment within a chain
type ApprovalStep struct {
	StepNumber         int        `json:"step_number"`
	ApproverID         string     `json:"approver_id"`
	ApproverName       string     `json:"approver_name"`
	ApproverRole       string     `json:"approver_role"`
	ApproverOrgUnitID  string     `json:"approver_org_unit_id"`
	Status             StepStatus `json:"status"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`
	Comments           string     `json:"comments,omitempty"`
	FinancialThreshold float64    `json:"financial_threshold"`
	CanEscalate        bool       `json:"can_escalate"`
}

// ApprovalComment is an immutable entry of the request comment log
type ApprovalComment struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_id"`
	AuthorName string      `json:"author_name"`
	AuthorRole string      `json:"author_role"`
	Text       string      `json:"text"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       CommentType `json:"type"`
}

// AmountValue returns the monetary amount, treating a missing amount as zero
func (r *ApprovalRequest) AmountValue() float64 {
	if r.Amount == nil {
		return 0
	}
	return *r.Amount
}

// CurrentStep returns the step awaiting action, or nil when the pointer is
// past the end of the chain.
func (r *ApprovalRequest) CurrentStep() *ApprovalStep {
	if r.CurrentApproverIndex < 0 || r.CurrentApproverIndex >= len(r.ApprovalChain) {
		return nil
	}
	return &r.ApprovalChain[r.CurrentApproverIndex]
}

// HasApprover reports whether userID holds any step in the chain
func (r *ApprovalRequest) HasApprover(userID string) bool {
	for i := range r.ApprovalChain {
		if r.ApprovalChain[i].ApproverID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Metadata values are copied one level deep; the
// engine treats them as opaque.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	c := *r

	if r.Amount != nil {
		amount := *r.Amount
		c.Amount = &amount
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.Attachments != nil {
		c.Attachments = append([]string(nil), r.Attachments...)
	}
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)

	if r.ApprovalChain != nil {
		c.ApprovalChain = make([]ApprovalStep, len(r.ApprovalChain))
		for i, step := range r.ApprovalChain {
			step.ApprovedAt = cloneTime(step.ApprovedAt)
			step.RejectedAt = cloneTime(step.RejectedAt)
			c.ApprovalChain[i] = step
		}
	}
	if r.Comments != nil {
		c.Comments = append([]ApprovalComment(nil), r.Comments...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
