package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/troikatech/engage-api/pkg/whatsapp"
)

const (
	TemplateStatusPending  = "PENDING"
	TemplateStatusApproved = "APPROVED"
	TemplateStatusRejected = "REJECTED"
)

type WhatsappTemplate struct {
	Base           `bson:",inline"`
	AdminID        primitive.ObjectID           `bson:"admin_id" json:"admin_id"`
	MetaTemplateID string                       `bson:"meta_template_id,omitempty" json:"meta_template_id,omitempty"`
	Name           string                       `bson:"name" json:"name"`
	Language       string                       `bson:"language" json:"language"`
	Category       string                       `bson:"category" json:"category"`
	Status         string                       `bson:"status" json:"status"`
	RejectedReason string                       `bson:"rejected_reason,omitempty" json:"rejected_reason,omitempty"`
	Components     []whatsapp.TemplateComponent `bson:"components" json:"components"`
}

const (
	NotificationMessage  = "whatsapp_message"
	NotificationCall     = "call_status"
	NotificationTemplate = "template_status"
	NotificationOrder    = "order"
)

type Notification struct {
	Base          `bson:",inline"`
	AdminID       primitive.ObjectID     `bson:"admin_id" json:"admin_id"`
	RecipientID   primitive.ObjectID     `bson:"recipient_id" json:"recipient_id"`
	RecipientRole string                 `bson:"recipient_role" json:"recipient_role"`
	Type          string                 `bson:"type" json:"type"`
	Title         string                 `bson:"title" json:"title"`
	Message       string                 `bson:"message" json:"message"`
	Data          map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	IsRead        bool                   `bson:"is_read" json:"is_read"`
	ReadAt        *time.Time             `bson:"read_at,omitempty" json:"read_at,omitempty"`
}
