package timezone

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// offsetRe matches the UTC offset shorthand forms: UTC, UTC+2, utc-9:30.
var offsetRe = regexp.MustCompile(`^(?i)UTC(?:([+-])(\d{1,2})(?::([0-5]\d))?)?$`)

// Real-world offsets run from UTC-12 to UTC+14.
const (
	minOffsetHours = -12
	maxOffsetHours = 14
)

// Resolve turns a user-supplied zone name into a location. IANA names
// ("Europe/Warsaw") and UTC offset shorthands are both accepted. The returned
// location's String() form resolves back to an equivalent location.
func Resolve(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("empty timezone")
	}

	if m := offsetRe.FindStringSubmatch(name); m != nil {
		if m[1] == "" {
			return time.UTC, nil
		}
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if m[1] == "-" {
			hours, minutes = -hours, -minutes
		}
		if hours < minOffsetHours || hours > maxOffsetHours ||
			(hours == maxOffsetHours && minutes > 0) || (hours == minOffsetHours && minutes < 0) {
			return nil, errors.Errorf("UTC offset out of range: %s", name)
		}
		return time.FixedZone(offsetName(hours, minutes), hours*3600+minutes*60), nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown timezone %q", name)
	}
	return loc, nil
}

func offsetName(hours, minutes int) string {
	if minutes == 0 {
		return fmt.Sprintf("UTC%+d", hours)
	}
	total := hours*60 + minutes
	sign := "+"
	if total < 0 {
		sign, total = "-", -total
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, total/60, total%60)
}

// ForSubscriber resolves a stored subscriber zone, falling back to def when it
// is empty or no longer resolvable.
func ForSubscriber(tz string, def *time.Location) *time.Location {
	if tz == "" {
		return def
	}
	loc, err := Resolve(tz)
	if err != nil {
		return def
	}
	return loc
}
