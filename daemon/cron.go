package daemon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// fiveFieldParser accepts the classic minute-through-day-of-week form.
// Seconds, descriptors (@daily), and timezone prefixes are all rejected.
var fiveFieldParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NextCronRunUTC evaluates expr against now and returns the next run
// time. The expression is interpreted in UTC regardless of now's
// location.
func NextCronRunUTC(expr string, now time.Time) (time.Time, error) {
	schedule, err := parseCronExpressionUTC(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, errors.New("cron expression is required")
	}
	for _, field := range strings.Fields(trimmed) {
		if hasTimezonePrefix(field) {
			return nil, fmt.Errorf("cron expression %q must be UTC-only, drop the timezone prefix", trimmed)
		}
	}

	schedule, err := fiveFieldParser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", trimmed, err)
	}
	return schedule, nil
}

func hasTimezonePrefix(field string) bool {
	upper := strings.ToUpper(field)
	return strings.HasPrefix(upper, "TZ=") || strings.HasPrefix(upper, "CRON_TZ=")
}
