package validator_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "ok"),
			validator.MaxLenString("name", "ok", 5),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("name", "  "),
			validator.ValidEmail("email", "nope"),
			validator.MinNum("limit", 0, 1),
		)
		require.Error(t, err)

		ve := validator.ExtractValidationErrors(fmt.Errorf("wrapped: %w", err))
		require.Len(t, ve, 3)
		assert.True(t, ve.Has("email"))
		assert.Equal(t, []string{"field is required"}, ve.Fields()["name"])
		assert.True(t, validator.IsValidationError(err))
	})

	t.Run("when skips rule", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(validator.When(false, validator.RequiredString("x", "")))
		assert.NoError(t, err)
	})

	t.Run("non validation error", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, validator.ExtractValidationErrors(errors.New("x")))
		assert.False(t, validator.IsValidationError(nil))
	})
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		want bool
	}{
		{"email ok", validator.ValidEmail("e", "a@example.com"), true},
		{"email display name", validator.ValidEmail("e", "Bob <a@example.com>"), false},
		{"email no tld", validator.ValidEmail("e", "a@localhost"), false},
		{"url ok", validator.ValidURL("u", "https://example.com/hook"), true},
		{"url scheme", validator.ValidURL("u", "ftp://example.com"), false},
		{"identifier ok", validator.ValidIdentifier("t", "task.assigned"), true},
		{"identifier upper", validator.ValidIdentifier("t", "Task"), false},
		{"in list", validator.InList("c", "email", []string{"email", "in_app"}), true},
		{"each in list", validator.EachInList("c", []string{"email", "sms"}, []string{"email"}), false},
		{"required slice", validator.RequiredSlice("c", []string{}), false},
		{"max slice", validator.MaxLenSlice("c", []int{1, 2, 3}, 2), false},
		{"max num", validator.MaxNum("n", 10, 10), true},
		{"uuid ok", validator.ValidUUID("id", uuid.NewString()), true},
		{"uuid bad", validator.ValidUUID("id", "123"), false},
		{"required uuid", validator.RequiredUUID("id", uuid.Nil), false},
		{"timezone ok", validator.ValidTimezone("tz", "Europe/Berlin"), true},
		{"timezone bad", validator.ValidTimezone("tz", "Mars/Base"), false},
		{"clock ok", validator.ValidClock("start", "22:00"), true},
		{"clock bad", validator.ValidClock("start", "25:00"), false},
		{"clock short", validator.ValidClock("start", "7:00"), false},
		{"max len runes", validator.MaxLenString("s", "äöü", 3), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.rule.Check())
		})
	}
}
