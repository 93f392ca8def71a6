package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Terminal Exotel call statuses.
var terminalCallStatuses = map[string]bool{
	"completed": true, "failed": true, "busy": true, "no-answer": true, "canceled": true,
}

type Call struct {
	Base         `bson:",inline"`
	AdminID      primitive.ObjectID  `bson:"admin_id" json:"admin_id"`
	AgentID      *primitive.ObjectID `bson:"agent_id,omitempty" json:"agent_id,omitempty"`
	CallSID      string              `bson:"call_sid" json:"call_sid"`
	From         string              `bson:"from" json:"from"`
	To           string              `bson:"to" json:"to"`
	CallerID     string              `bson:"caller_id" json:"caller_id"`
	Direction    string              `bson:"direction" json:"direction"`
	Status       string              `bson:"status" json:"status"`
	Duration     int                 `bson:"duration" json:"duration"`
	RecordingURL string              `bson:"recording_url,omitempty" json:"recording_url,omitempty"`
	Price        string              `bson:"price,omitempty" json:"price,omitempty"`
	StartTime    *time.Time          `bson:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime      *time.Time          `bson:"end_time,omitempty" json:"end_time,omitempty"`
}

// FormattedDuration renders Duration seconds as mm:ss, or h:mm:ss past an hour.
func (c Call) FormattedDuration() string {
	d := c.Duration
	if d < 0 {
		d = 0
	}
	h, m, s := d/3600, (d%3600)/60, d%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func (c Call) IsTerminal() bool {
	return terminalCallStatuses[c.Status]
}

// CallView is the JSON shape returned to clients.
type CallView struct {
	Call
	FormattedDuration string `json:"formatted_duration"`
}

func (c Call) View() CallView {
	return CallView{Call: c, FormattedDuration: c.FormattedDuration()}
}
