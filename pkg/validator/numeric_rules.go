package validator

import "fmt"

func MinNum[T Numeric](field string, value, minVal T) Rule {
	return rule(field, "min", fmt.Sprintf("must be at least %v", minVal), func() bool {
		return value >= minVal
	})
}

func MaxNum[T Numeric](field string, value, maxVal T) Rule {
	return rule(field, "max", fmt.Sprintf("must be at most %v", maxVal), func() bool {
		return value <= maxVal
	})
}
