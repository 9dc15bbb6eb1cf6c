package models

// WeekLedgerEntry accumulates a user's arena point contributions for one week.
// Created on the first contribution of the week, incremented afterwards, never
// deleted — new weeks get new rows. Clan rankings aggregate over these rows.
type WeekLedgerEntry struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex:idx_ledger_user_week;not null" json:"external_user_id"`
	WeekStart      string  `gorm:"uniqueIndex:idx_ledger_user_week;type:varchar(10);not null" json:"week_start"`
	Points         int     `json:"points" gorm:"default:0"`
	ClanID         *string `gorm:"index" json:"clan_id,omitempty"` // snapshot of membership at contribution time

	Timestamps
}
