package schedule

import (
	"fmt"
	"time"
)

const dayMillis = 24 * 60 * 60 * 1000

// minuteOfDay extracts the UTC hour:minute of an instant as minutes since
// midnight. The date component of schedule timestamps is deliberately
// ignored.
func minuteOfDay(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

// insideWindow reports whether now falls inside the daily on/off window, all
// three expressed as minutes since midnight. Windows where on >= off span
// midnight.
func insideWindow(on, off, now int) bool {
	if on < off {
		return on <= now && now < off
	}
	return now >= on || now < off
}

// pulseOffsets returns the N daily fire times as millisecond offsets from
// midnight, spaced dayMillis/n apart starting at the start instant's UTC
// time-of-day. Each offset is derived independently from i*dayMillis/n so
// integer rounding never accumulates.
func pulseOffsets(start time.Time, n int) []int64 {
	u := start.UTC()
	base := int64(u.Hour())*3600_000 + int64(u.Minute())*60_000 + int64(u.Second())*1000
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = (base + int64(i)*dayMillis/int64(n)) % dayMillis
	}
	return out
}

// cronSpecMinute renders a daily fire time given as minutes since midnight
// into a seconds-resolution cron spec.
func cronSpecMinute(minute int) string {
	return fmt.Sprintf("0 %d %d * * *", minute%60, minute/60)
}

// cronSpecOffset renders a millisecond offset from midnight into a
// seconds-resolution cron spec, rounding to the nearest second.
func cronSpecOffset(offset int64) string {
	secs := (offset + 500) / 1000 % 86400
	return fmt.Sprintf("%d %d %d * * *", secs%60, secs/60%60, secs/3600)
}
