package services

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Arena tiers, lowest first. Each tier has 4 divisions (IV lowest, I highest)
// of equal point width.
var EloTiers = []string{"iron", "bronze", "silver", "gold", "platinum", "diamond"}

// EloDivisionWidth is the point width of one division (tunable via config/env later).
const EloDivisionWidth = 100

const divisionsPerTier = 4

// TierOf maps raw arena points to (tier, division). Total over all integers:
// anything below the floor clamps to iron IV, anything above the ceiling to
// diamond I. Monotonic in points.
func TierOf(points int) (string, int) {
	if points < 0 {
		points = 0
	}
	idx := points / EloDivisionWidth
	tierIdx := idx / divisionsPerTier
	if tierIdx >= len(EloTiers) {
		return EloTiers[len(EloTiers)-1], 1
	}
	division := divisionsPerTier - idx%divisionsPerTier // IV → I within the tier
	return EloTiers[tierIdx], division
}

// TierRank returns an absolute ordinal for a (tier, division) pair, higher is
// better. Lets callers compare ranks without knowing the band layout.
func TierRank(tier string, division int) int {
	for i, t := range EloTiers {
		if t == tier {
			return i*divisionsPerTier + (divisionsPerTier - division)
		}
	}
	return 0
}

var titleCaser = cases.Title(language.English)

// TierDisplayName renders e.g. ("gold", 2) → "Gold II".
func TierDisplayName(tier string, division int) string {
	return titleCaser.String(tier) + " " + romanDivision(division)
}

// TierStyle returns the accent color hex the clients use for a tier.
func TierStyle(tier string) string {
	switch tier {
	case "bronze":
		return "#CD7F32"
	case "silver":
		return "#C0C0C0"
	case "gold":
		return "#FFD700"
	case "platinum":
		return "#40E0D0"
	case "diamond":
		return "#B9F2FF"
	default: // iron
		return "#5E5E5E"
	}
}

func romanDivision(division int) string {
	switch division {
	case 1:
		return "I"
	case 2:
		return "II"
	case 3:
		return "III"
	default:
		return "IV"
	}
}
