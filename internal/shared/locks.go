package shared

import (
	"fmt"
	"time"
)

// ShiftLockKey builds the redis key guarding the single writer of a shift.
func ShiftLockKey(shiftID int64) string {
	return fmt.Sprintf("fuelstation:shift:%d:lock", shiftID)
}

// DaySummaryLockKey builds the redis key guarding a day summary rebuild.
func DaySummaryLockKey(date time.Time) string {
	return fmt.Sprintf("fuelstation:day:%s:lock", date.Format(time.DateOnly))
}
