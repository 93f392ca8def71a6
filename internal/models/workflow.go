package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WorkflowNode struct {
	ID     string                 `bson:"id" json:"id" binding:"required"`
	Type   string                 `bson:"type" json:"type" binding:"required"`
	Name   string                 `bson:"name" json:"name"`
	Config map[string]interface{} `bson:"config,omitempty" json:"config,omitempty"`
	Next   []string               `bson:"next,omitempty" json:"next,omitempty"`
}

type Workflow struct {
	Base        `bson:",inline"`
	AdminID     primitive.ObjectID `bson:"admin_id" json:"admin_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Trigger     string             `bson:"trigger" json:"trigger"`
	Nodes       []WorkflowNode     `bson:"nodes" json:"nodes"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
}

// ValidateGraph checks node ids are unique and every edge points at a known node.
func (w Workflow) ValidateGraph() error {
	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	for _, n := range w.Nodes {
		for _, next := range n.Next {
			if !seen[next] {
				return fmt.Errorf("node %q points at unknown node %q", n.ID, next)
			}
		}
	}
	return nil
}

const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

var orderTransitions = map[string][]string{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderShipped, OrderCancelled},
	OrderShipped:   {OrderDelivered},
}

type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	UnitPrice float64            `bson:"unit_price" json:"unit_price"`
}

type StatusChange struct {
	Status string    `bson:"status" json:"status"`
	At     time.Time `bson:"at" json:"at"`
	By     string    `bson:"by" json:"by"`
}

type Order struct {
	Base          `bson:",inline"`
	AdminID       primitive.ObjectID  `bson:"admin_id" json:"admin_id"`
	UserID        *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	CustomerName  string              `bson:"customer_name" json:"customer_name"`
	CustomerPhone string              `bson:"customer_phone" json:"customer_phone"`
	Items         []OrderItem         `bson:"items" json:"items"`
	Total         float64             `bson:"total" json:"total"`
	Currency      string              `bson:"currency" json:"currency"`
	Status        string              `bson:"status" json:"status"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	History       []StatusChange      `bson:"history" json:"history"`
}

// ComputeTotal sums the line items.
func (o Order) ComputeTotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

// CanTransition reports whether the order may move to next.
func (o Order) CanTransition(next string) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}
