package services

import (
	"testing"
	"time"

	"arena-progression-service/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the same error translation
// the production postgres connection uses, so unique-index races surface as
// gorm.ErrDuplicatedKey in both.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // one connection: :memory: databases are per-connection

	require.NoError(t, db.AutoMigrate(
		&models.UserProgression{},
		&models.DailyReward{},
		&models.PenaltyRecord{},
		&models.FreezeWindow{},
		&models.WeekLedgerEntry{},
		&models.WorkoutDayMirror{},
		&models.ClanMemberMirror{},
		&models.ClanRankingSnapshot{},
		&models.BadgeType{},
		&models.UserBadge{},
	))
	return db
}

// Wednesday, 2025-06-11. Its week starts Monday 2025-06-09.
var testInstant = time.Date(2025, 6, 11, 15, 0, 0, 0, time.UTC)

const (
	testToday     = "2025-06-11"
	testWeekStart = "2025-06-09"
)

func newTestCalendar() *Calendar {
	return NewCalendarAt(time.UTC, testInstant)
}

// advanceTo moves the calendar's clock to noon of the given date key.
func advanceTo(t *testing.T, cal *Calendar, dateKey string) {
	t.Helper()
	at, err := time.ParseInLocation(DateKeyLayout, dateKey, time.UTC)
	require.NoError(t, err)
	at = at.Add(12 * time.Hour)
	cal.SetNow(func() time.Time { return at })
}
