package entity

// RequestType identifies what is being approved
type RequestType string

const (
	RequestTypeExpense             RequestType = "expense"
	RequestTypeTaskCompletion      RequestType = "task_completion"
	RequestTypeBudgetAllocation    RequestType = "budget_allocation"
	RequestTypeEquipmentPurchase   RequestType = "equipment_purchase"
	RequestTypeSafeAccess          RequestType = "safe_access"
	RequestTypePayrollAdjustment   RequestType = "payroll_adjustment"
	RequestTypeDocumentApproval    RequestType = "document_approval"
	RequestTypeMilestoneCompletion RequestType = "milestone_completion"
)

// RequestTypes lists every supported request type in display order
var RequestTypes = []RequestType{
	RequestTypeExpense,
	RequestTypeTaskCompletion,
	RequestTypeBudgetAllocation,
	RequestTypeEquipmentPurchase,
	RequestTypeSafeAccess,
	RequestTypePayrollAdjustment,
	RequestTypeDocumentApproval,
	RequestTypeMilestoneCompletion,
}

// IsValid checks if the request type is one of the defined constants
func (t RequestType) IsValid() bool {
	switch t {
	case RequestTypeExpense,
		RequestTypeTaskCompletion,
		RequestTypeBudgetAllocation,
		RequestTypeEquipmentPurchase,
		RequestTypeSafeAccess,
		RequestTypePayrollAdjustment,
		RequestTypeDocumentApproval,
		RequestTypeMilestoneCompletion:
		return true
	default:
		return false
	}
}

// Priority of an approval request
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every priority from lowest to highest
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// IsValid checks if the priority is one of the defined constants
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// StepStatus is the decision state of a single approval step
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

// CommentType classifies entries of the request comment log
type CommentType string

const (
	CommentTypeComment    CommentType = "comment"
	CommentTypeApproval   CommentType = "approval"
	CommentTypeRejection  CommentType = "rejection"
	CommentTypeEscalation CommentType = "escalation"
)
