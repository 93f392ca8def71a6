// Package tracking records workflow, KYC, API and interaction events in one
// schema, broadcasts them to live listeners and mirrors them into GTM.
package tracking

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Category string

const (
	CategoryWorkflow        Category = "workflow"
	CategoryKYC             Category = "kyc"
	CategoryAPI             Category = "api"
	CategoryUserInteraction Category = "user_interaction"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryWorkflow, CategoryKYC, CategoryAPI, CategoryUserInteraction:
		return true
	}
	return false
}

// Event types emitted by the specialised trackers.
const (
	TypeWorkflowStart       = "workflow_start"
	TypeNodeExecution       = "node_execution"
	TypeUserInput           = "user_input"
	TypeConditionEvaluation = "condition_evaluation"
	TypeAPICall             = "api_call"
	TypeWorkflowCompletion  = "workflow_completion"
	TypeKycStep             = "kyc_step"
	TypeKycStatus           = "kyc_status"
)

// Event is the stored, append-only record.
type Event struct {
	ID                   primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	EventType            string                 `bson:"event_type" json:"event_type"`
	EventCategory        Category               `bson:"event_category" json:"event_category"`
	AdminID              string                 `bson:"admin_id,omitempty" json:"admin_id,omitempty"`
	WorkflowID           string                 `bson:"workflow_id,omitempty" json:"workflow_id,omitempty"`
	SessionID            string                 `bson:"session_id,omitempty" json:"session_id,omitempty"`
	UserID               string                 `bson:"user_id,omitempty" json:"user_id,omitempty"`
	NodeID               string                 `bson:"node_id,omitempty" json:"node_id,omitempty"`
	NodeType             string                 `bson:"node_type,omitempty" json:"node_type,omitempty"`
	KycStep              string                 `bson:"kyc_step,omitempty" json:"kyc_step,omitempty"`
	VerificationType     string                 `bson:"verification_type,omitempty" json:"verification_type,omitempty"`
	InputVariable        string                 `bson:"input_variable,omitempty" json:"input_variable,omitempty"`
	InputValue           interface{}            `bson:"input_value,omitempty" json:"input_value,omitempty"`
	ExecutionTimeMs      *int64                 `bson:"execution_time_ms,omitempty" json:"execution_time_ms,omitempty"`
	Success              *bool                  `bson:"success,omitempty" json:"success,omitempty"`
	CompletionPercentage *int                   `bson:"completion_percentage,omitempty" json:"completion_percentage,omitempty"`
	Metadata             map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp            time.Time              `bson:"timestamp" json:"timestamp"`
}

// Payload is the closed set of per-category shapes. Each variant writes its
// fields into the flat Event.
type Payload interface {
	Category() Category
	apply(e *Event)
}

type WorkflowPayload struct {
	NodeID               string
	NodeType             string
	ExecutionTimeMs      *int64
	Success              *bool
	CompletionPercentage *int
}

func (WorkflowPayload) Category() Category { return CategoryWorkflow }

func (p WorkflowPayload) apply(e *Event) {
	e.NodeID = p.NodeID
	e.NodeType = p.NodeType
	e.ExecutionTimeMs = p.ExecutionTimeMs
	e.Success = p.Success
	e.CompletionPercentage = p.CompletionPercentage
}

type KycPayload struct {
	KycStep          string
	VerificationType string
	ExecutionTimeMs  *int64
	Success          *bool
}

func (KycPayload) Category() Category { return CategoryKYC }

func (p KycPayload) apply(e *Event) {
	e.KycStep = p.KycStep
	e.VerificationType = p.VerificationType
	e.ExecutionTimeMs = p.ExecutionTimeMs
	e.Success = p.Success
}

// ApiPayload describes an outbound call. It also serves KYC provider calls,
// so its Category is whatever the caller classified it as.
type ApiPayload struct {
	Class           Category
	NodeID          string
	Endpoint        string
	Method          string
	StatusCode      int
	ExecutionTimeMs *int64
	Success         *bool
}

func (p ApiPayload) Category() Category {
	if p.Class == "" {
		return CategoryAPI
	}
	return p.Class
}

func (p ApiPayload) apply(e *Event) {
	e.NodeID = p.NodeID
	e.ExecutionTimeMs = p.ExecutionTimeMs
	e.Success = p.Success
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata["endpoint"] = p.Endpoint
	if p.Method != "" {
		e.Metadata["method"] = p.Method
	}
	if p.StatusCode != 0 {
		e.Metadata["status_code"] = p.StatusCode
	}
	if p.Class == CategoryKYC && e.VerificationType == "" {
		e.VerificationType = "api"
	}
}

type InteractionPayload struct {
	NodeID        string
	NodeType      string
	InputVariable string
	InputValue    interface{}
	Success       *bool
}

func (InteractionPayload) Category() Category { return CategoryUserInteraction }

func (p InteractionPayload) apply(e *Event) {
	e.NodeID = p.NodeID
	e.NodeType = p.NodeType
	e.InputVariable = p.InputVariable
	e.InputValue = p.InputValue
	e.Success = p.Success
}

// entity is the part of the GTM tag name that identifies what the event is about.
func (e Event) entity() string {
	switch {
	case e.KycStep != "":
		return e.KycStep
	case e.InputVariable != "":
		return e.InputVariable
	case e.NodeType != "":
		return e.NodeType
	case e.NodeID != "":
		return e.NodeID
	}
	if ep, ok := e.Metadata["endpoint"].(string); ok && ep != "" {
		return ep
	}
	return e.WorkflowID
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(n int64) *int64 { return &n }
func intPtr(n int) *int       { return &n }
