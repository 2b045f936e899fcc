package validator

import "github.com/google/uuid"

// RequiredUUID fails for the nil UUID.
func RequiredUUID(field string, value uuid.UUID) Rule {
	return rule(field, "required", "field is required", func() bool {
		return value != uuid.Nil
	})
}

// ValidUUID checks the string form of an id.
func ValidUUID(field, value string) Rule {
	return rule(field, "uuid", "must be a valid UUID", func() bool {
		_, err := uuid.Parse(value)
		return err == nil && len(value) == 36
	})
}
