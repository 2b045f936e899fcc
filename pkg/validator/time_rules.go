package validator

import "time"

// ValidTimezone accepts IANA zone names known to the runtime.
func ValidTimezone(field, value string) Rule {
	return rule(field, "timezone", "must be a valid IANA time zone", func() bool {
		if value == "" {
			return false
		}
		_, err := time.LoadLocation(value)
		return err == nil
	})
}

// ValidClock accepts 24-hour "HH:MM" values.
func ValidClock(field, value string) Rule {
	return rule(field, "clock", "must be a time of day in HH:MM format", func() bool {
		_, err := time.Parse("15:04", value)
		return err == nil && len(value) == 5
	})
}
