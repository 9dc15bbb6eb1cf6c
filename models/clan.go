package models

// ClanMemberMirror is a local snapshot of clan membership from the social service.
// Used for the ranking read path and to answer "may this user review a freeze
// request for clan C?". Populated via the clan member sync worker.
type ClanMemberMirror struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_clan_member;not null" json:"external_user_id"`
	ClanID         string `gorm:"uniqueIndex:idx_clan_member;index;not null" json:"clan_id"`
	ClanName       string `gorm:"not null" json:"clan_name"`
	Role           string `gorm:"type:varchar(16);default:'member'" json:"role"` // member | leader

	Timestamps
}

// IsLeader reports whether the member may review freeze requests for the clan.
func (m *ClanMemberMirror) IsLeader() bool {
	return m.Role == "leader"
}

// ClanRankingSnapshot is a periodically refreshed cache of per-clan weekly
// standings. Pure read-path optimization: the engine never makes decisions
// based on it, so a stale snapshot is harmless.
type ClanRankingSnapshot struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	ClanID      string `gorm:"uniqueIndex:idx_clan_rank_week;not null" json:"clan_id"`
	WeekStart   string `gorm:"uniqueIndex:idx_clan_rank_week;type:varchar(10);not null" json:"week_start"`
	ClanName    string `json:"clan_name"`
	Slug        string `gorm:"index" json:"slug"`
	TotalPoints int    `json:"total_points" gorm:"default:0"`
	MemberCount int    `json:"member_count" gorm:"default:0"`
	Rank        int    `json:"rank" gorm:"default:0"`

	Timestamps
}
