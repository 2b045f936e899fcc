package validator

import "fmt"

func RequiredSlice[T any](field string, value []T) Rule {
	return rule(field, "required", "must contain at least one item", func() bool {
		return len(value) > 0
	})
}

func MaxLenSlice[T any](field string, value []T, maxLen int) Rule {
	return rule(field, "max_items", fmt.Sprintf("must contain at most %d items", maxLen), func() bool {
		return len(value) <= maxLen
	})
}
