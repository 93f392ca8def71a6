package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCall_FormattedDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{65, "01:05"},
		{3599, "59:59"},
		{3725, "1:02:05"},
		{-4, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Call{Duration: tt.seconds}.FormattedDuration())
	}
}

func TestCall_IsTerminal(t *testing.T) {
	assert.True(t, Call{Status: "completed"}.IsTerminal())
	assert.False(t, Call{Status: "in-progress"}.IsTerminal())
}

func TestOrder_Transitions(t *testing.T) {
	o := Order{Status: OrderPending}
	assert.True(t, o.CanTransition(OrderConfirmed))
	assert.True(t, o.CanTransition(OrderCancelled))
	assert.False(t, o.CanTransition(OrderDelivered))

	o.Status = OrderDelivered
	assert.False(t, o.CanTransition(OrderCancelled))
}

func TestOrder_ComputeTotal(t *testing.T) {
	o := Order{Items: []OrderItem{{Quantity: 2, UnitPrice: 10.5}, {Quantity: 1, UnitPrice: 4}}}
	assert.InDelta(t, 25.0, o.ComputeTotal(), 1e-9)
}

func TestWorkflow_ValidateGraph(t *testing.T) {
	ok := Workflow{Nodes: []WorkflowNode{{ID: "a", Next: []string{"b"}}, {ID: "b"}}}
	assert.NoError(t, ok.ValidateGraph())

	dup := Workflow{Nodes: []WorkflowNode{{ID: "a"}, {ID: "a"}}}
	assert.Error(t, dup.ValidateGraph())

	dangling := Workflow{Nodes: []WorkflowNode{{ID: "a", Next: []string{"z"}}}}
	assert.Error(t, dangling.ValidateGraph())
}

func TestSoftDeleteAndStock(t *testing.T) {
	p := Product{IsActive: true, Stock: 3}
	assert.True(t, p.InStock(3))
	assert.False(t, p.InStock(4))

	now := time.Now()
	p.DeletedAt = &now
	assert.True(t, p.IsDeleted())
	assert.False(t, p.InStock(1))
}

func TestBase_Touch(t *testing.T) {
	var b Base
	b.Touch()
	assert.False(t, b.ID.IsZero())
	assert.Equal(t, b.CreatedAt, b.UpdatedAt)

	created := b.CreatedAt
	time.Sleep(time.Millisecond)
	b.Touch()
	assert.Equal(t, created, b.CreatedAt)
	assert.True(t, b.UpdatedAt.After(created))
}

func TestDeriveKYCStatus(t *testing.T) {
	ok := KYCStep{Verified: true}
	bad := KYCStep{Verified: false}

	tests := []struct {
		name  string
		steps map[string]KYCStep
		want  string
	}{
		{"nothing yet", nil, KYCPending},
		{"pan only", map[string]KYCStep{"pan": ok}, KYCPending},
		{"pan and aadhaar", map[string]KYCStep{"pan": ok, "aadhaar": ok}, KYCVerified},
		{"optional bank too", map[string]KYCStep{"pan": ok, "aadhaar": ok, "bank": ok}, KYCVerified},
		{"any failure", map[string]KYCStep{"pan": ok, "aadhaar": bad}, KYCFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveKYCStatus(tt.steps))
		})
	}
}
