package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SuperAdmin struct {
	Base     `bson:",inline"`
	Name     string `bson:"name" json:"name"`
	Email    string `bson:"email" json:"email"`
	Password string `bson:"password" json:"-"`
}

type Admin struct {
	Base        `bson:",inline"`
	Name        string `bson:"name" json:"name"`
	Email       string `bson:"email" json:"email"`
	Phone       string `bson:"phone,omitempty" json:"phone,omitempty"`
	Password    string `bson:"password" json:"-"`
	CompanyName string `bson:"company_name,omitempty" json:"company_name,omitempty"`
	IsActive    bool   `bson:"is_active" json:"is_active"`
	// WhatsAppPhoneNumberID routes inbound webhooks to this tenant.
	WhatsAppPhoneNumberID string             `bson:"whatsapp_phone_number_id,omitempty" json:"whatsapp_phone_number_id,omitempty"`
	CreatedBy             primitive.ObjectID `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

type Agent struct {
	Base       `bson:",inline"`
	AdminID    primitive.ObjectID `bson:"admin_id" json:"admin_id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Password   string             `bson:"password" json:"-"`
	Department string             `bson:"department,omitempty" json:"department,omitempty"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
}

// User is an end customer registered under an admin tenant.
type User struct {
	Base       `bson:",inline"`
	SoftDelete `bson:",inline"`
	AdminID    primitive.ObjectID `bson:"admin_id" json:"admin_id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Password   string             `bson:"password" json:"-"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
	KYCStatus  string             `bson:"kyc_status" json:"kyc_status"`
	KYCSteps   map[string]KYCStep `bson:"kyc_steps,omitempty" json:"kyc_steps,omitempty"`
}

// KYCStep is the latest outcome of one verification step.
type KYCStep struct {
	Verified bool      `bson:"verified" json:"verified"`
	At       time.Time `bson:"at" json:"at"`
	Detail   string    `bson:"detail,omitempty" json:"detail,omitempty"`
}

// RequiredKYCSteps must all be verified before a user is KYC verified.
var RequiredKYCSteps = []string{"pan", "aadhaar"}

// DeriveKYCStatus computes the overall status from the step outcomes.
func DeriveKYCStatus(steps map[string]KYCStep) string {
	for _, s := range steps {
		if !s.Verified {
			return KYCFailed
		}
	}
	for _, name := range RequiredKYCSteps {
		if !steps[name].Verified {
			return KYCPending
		}
	}
	return KYCVerified
}

const (
	KYCPending  = "pending"
	KYCVerified = "verified"
	KYCFailed   = "failed"
)
