package tracking

import (
	"context"
	"encoding/json"
	"math"
	"strings"
)

// Context identifies where in a workflow run an event happened.
type Context struct {
	AdminID    string
	WorkflowID string
	SessionID  string
	UserID     string
}

func (s *Service) TrackWorkflowStart(ctx context.Context, run Context, metadata map[string]interface{}) (*Event, error) {
	return s.Track(ctx, Input{
		EventType:  TypeWorkflowStart,
		Category:   CategoryWorkflow,
		AdminID:    run.AdminID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		UserID:     run.UserID,
		Metadata:   metadata,
	})
}

type NodeExecution struct {
	NodeID          string
	NodeType        string
	ExecutionTimeMs int64
	Success         bool
	Metadata        map[string]interface{}
}

func (s *Service) TrackNodeExecution(ctx context.Context, run Context, n NodeExecution) (*Event, error) {
	return s.Track(ctx, Input{
		EventType:  TypeNodeExecution,
		Category:   CategoryWorkflow,
		AdminID:    run.AdminID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		UserID:     run.UserID,
		Payload: WorkflowPayload{
			NodeID:          n.NodeID,
			NodeType:        n.NodeType,
			ExecutionTimeMs: int64Ptr(n.ExecutionTimeMs),
			Success:         boolPtr(n.Success),
		},
		Metadata: n.Metadata,
	})
}

type UserInput struct {
	NodeID        string
	NodeType      string
	InputVariable string
	InputValue    interface{}
	Metadata      map[string]interface{}
}

// TrackUserInput stores the raw value; the broadcast copy is redacted when
// the variable name looks sensitive.
func (s *Service) TrackUserInput(ctx context.Context, run Context, in UserInput) (*Event, error) {
	return s.Track(ctx, Input{
		EventType:  TypeUserInput,
		Category:   CategoryUserInteraction,
		AdminID:    run.AdminID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		UserID:     run.UserID,
		Payload: InteractionPayload{
			NodeID:        in.NodeID,
			NodeType:      in.NodeType,
			InputVariable: in.InputVariable,
			InputValue:    in.InputValue,
		},
		Metadata: in.Metadata,
	})
}

type ConditionEvaluation struct {
	NodeID    string
	Condition string
	Result    bool
	Metadata  map[string]interface{}
}

func (s *Service) TrackConditionEvaluation(ctx context.Context, run Context, c ConditionEvaluation) (*Event, error) {
	md := withExtras(c.Metadata, map[string]interface{}{
		"condition": c.Condition,
		"result":    c.Result,
	})
	return s.Track(ctx, Input{
		EventType:  TypeConditionEvaluation,
		Category:   CategoryWorkflow,
		AdminID:    run.AdminID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		UserID:     run.UserID,
		Payload: WorkflowPayload{
			NodeID:   c.NodeID,
			NodeType: "condition",
			Success:  boolPtr(true),
		},
		Metadata: md,
	})
}

type APICall struct {
	// Category overrides classification from the endpoint. Only kyc and api
	// are meaningful.
	Category        Category
	NodeID          string
	Endpoint        string
	Method          string
	StatusCode      int
	ExecutionTimeMs int64
	Success         bool
	Metadata        map[string]interface{}
}

func (s *Service) TrackAPICall(ctx context.Context, run Context, call APICall) (*Event, error) {
	category := call.Category
	if category == "" {
		category = ClassifyEndpoint(call.Endpoint)
	}
	return s.Track(ctx, Input{
		EventType:  TypeAPICall,
		Category:   category,
		AdminID:    run.AdminID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		UserID:     run.UserID,
		Payload: ApiPayload{
			Class:           category,
			NodeID:          call.NodeID,
			Endpoint:        call.Endpoint,
			Method:          call.Method,
			StatusCode:      call.StatusCode,
			ExecutionTimeMs: int64Ptr(call.ExecutionTimeMs),
			Success:         boolPtr(call.Success),
		},
		Metadata: call.Metadata,
	})
}

var kycEndpointMarkers = []string{"verification", "surepass", "kyc"}

// ClassifyEndpoint is the fallback used when a caller gives TrackAPICall no category.
func ClassifyEndpoint(endpoint string) Category {
	lower := strings.ToLower(endpoint)
	for _, m := range kycEndpointMarkers {
		if strings.Contains(lower, m) {
			return CategoryKYC
		}
	}
	return CategoryAPI
}

type WorkflowCompletion struct {
	CompletedNodes  int
	TotalNodes      int
	ExecutionTimeMs int64
	Success         bool
	Metadata        map[string]interface{}
}

func (s *Service) TrackWorkflowCompletion(ctx context.Context, run Context, c WorkflowCompletion) (*Event, error) {
	md := withExtras(c.Metadata, map[string]interface{}{
		"completed_nodes": c.CompletedNodes,
		"total_nodes":     c.TotalNodes,
	})
	return s.Track(ctx, Input{
		EventType:  TypeWorkflowCompletion,
		Category:   CategoryWorkflow,
		AdminID:    run.AdminID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		UserID:     run.UserID,
		Payload: WorkflowPayload{
			ExecutionTimeMs:      int64Ptr(c.ExecutionTimeMs),
			Success:              boolPtr(c.Success),
			CompletionPercentage: intPtr(CompletionPercentage(c.CompletedNodes, c.TotalNodes)),
		},
		Metadata: md,
	})
}

// CompletionPercentage rounds completed/total to a whole percent; 0 when total is 0.
func CompletionPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// TrackKycStep records one verification step. admin_id, workflow_id,
// session_id, verification_type and execution_time_ms are lifted out of
// metadata into their own fields when present.
func (s *Service) TrackKycStep(ctx context.Context, userID, step string, success bool, metadata map[string]interface{}) (*Event, error) {
	md := copyMetadata(metadata)
	payload := KycPayload{
		KycStep: step,
		Success: boolPtr(success),
	}
	if ms, ok := takeInt64(md, "execution_time_ms"); ok {
		payload.ExecutionTimeMs = &ms
	}
	payload.VerificationType = takeString(md, "verification_type")
	if payload.VerificationType == "" {
		payload.VerificationType = step
	}

	return s.Track(ctx, Input{
		EventType:  TypeKycStep,
		Category:   CategoryKYC,
		AdminID:    takeString(md, "admin_id"),
		WorkflowID: takeString(md, "workflow_id"),
		SessionID:  takeString(md, "session_id"),
		UserID:     userID,
		Payload:    payload,
		Metadata:   md,
	})
}

// TrackKycStatus records the user's overall KYC status (pending, verified, failed).
func (s *Service) TrackKycStatus(ctx context.Context, userID, status string, metadata map[string]interface{}) (*Event, error) {
	md := withExtras(metadata, map[string]interface{}{"status": status})
	return s.Track(ctx, Input{
		EventType:  TypeKycStatus,
		Category:   CategoryKYC,
		AdminID:    takeString(md, "admin_id"),
		WorkflowID: takeString(md, "workflow_id"),
		SessionID:  takeString(md, "session_id"),
		UserID:     userID,
		Payload: KycPayload{
			KycStep: "status",
			Success: boolPtr(status == "verified"),
		},
		Metadata: md,
	})
}

func withExtras(base, extras map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extras))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extras {
		out[k] = v
	}
	return out
}

// takeString removes key from m and returns it when it is a string.
func takeString(m map[string]interface{}, key string) string {
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	delete(m, key)
	return v
}

func takeInt64(m map[string]interface{}, key string) (int64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		n = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	delete(m, key)
	return n, true
}
