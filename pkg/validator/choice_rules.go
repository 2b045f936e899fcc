package validator

import (
	"fmt"
	"slices"
)

func InList[T comparable](field string, value T, allowed []T) Rule {
	return rule(field, "in_list", fmt.Sprintf("must be one of: %v", allowed), func() bool {
		return slices.Contains(allowed, value)
	})
}

// EachInList checks every element of values against allowed.
func EachInList[T comparable](field string, values []T, allowed []T) Rule {
	return rule(field, "in_list", fmt.Sprintf("every value must be one of: %v", allowed), func() bool {
		for _, v := range values {
			if !slices.Contains(allowed, v) {
				return false
			}
		}
		return true
	})
}
