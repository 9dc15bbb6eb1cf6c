package models

import "time"

// FreezeStatus is the review state of a freeze request
type FreezeStatus string

const (
	FreezeStatusPending  FreezeStatus = "pending"
	FreezeStatusApproved FreezeStatus = "approved"
	FreezeStatusRejected FreezeStatus = "rejected"
)

// FreezeWindow is a user-requested date range during which missed-commitment
// penalties are suppressed. Only approved windows have any effect. The status
// transition pending → approved/rejected is terminal.
type FreezeWindow struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"index;not null" json:"external_user_id"`
	ClanID         *string `gorm:"index" json:"clan_id,omitempty"` // clan whose leaders review the request

	FromDate  string `gorm:"type:varchar(10);not null" json:"from_date"`
	UntilDate string `gorm:"type:varchar(10);not null" json:"until_date"` // inclusive

	Status   FreezeStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Reason   string       `gorm:"type:text" json:"reason"`
	ProofURL string       `gorm:"type:text" json:"proof_url,omitempty"` // e.g., medical note uploaded to R2

	ReviewedBy *string    `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	Timestamps
}

// Covers reports whether dateKey falls inside [FromDate, UntilDate].
// Date keys are ISO dates so plain string comparison orders correctly.
func (f *FreezeWindow) Covers(dateKey string) bool {
	return f.FromDate <= dateKey && dateKey <= f.UntilDate
}
