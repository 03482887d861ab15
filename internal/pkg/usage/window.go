package usage

import (
	"time"

	"github.com/aiassist/core/internal/models"
)

// ReconcileWindows applies the calendar rollovers to u as observed at now.
// A daily counter whose window started on another calendar date is reset, a
// monthly counter whose window started in another (year, month) is reset.
// Dates are compared in now's location. The function is pure: calling it
// again with a now inside the same windows returns its input unchanged.
func ReconcileWindows(u models.Usage, now time.Time) models.Usage {
	loc := now.Location()

	if !sameDay(u.LastDailyResetAt.In(loc), now) {
		u.DailyCount = 0
		u.LastDailyResetAt = now
	}
	if !sameMonth(u.LastMonthlyResetAt.In(loc), now) {
		u.MonthlyCount = 0
		u.LastMonthlyResetAt = now
	}
	return u
}

// PruneReservations drops in-flight reservations older than ttl.
func PruneReservations(u models.Usage, now time.Time, ttl time.Duration) models.Usage {
	if len(u.InFlight) == 0 {
		return u
	}
	u.InFlight, _ = models.RemoveWhere(u.InFlight, func(r models.Reservation) bool {
		return now.Sub(r.At) > ttl
	})
	return u
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func usageChanged(before, after models.Usage) bool {
	return before.DailyCount != after.DailyCount ||
		before.MonthlyCount != after.MonthlyCount ||
		!before.LastDailyResetAt.Equal(after.LastDailyResetAt) ||
		!before.LastMonthlyResetAt.Equal(after.LastMonthlyResetAt) ||
		len(before.InFlight) != len(after.InFlight)
}
