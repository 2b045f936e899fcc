package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RequiredString fails for empty or whitespace-only values.
func RequiredString(field, value string) Rule {
	return rule(field, "required", "field is required", func() bool {
		return strings.TrimSpace(value) != ""
	})
}

// MaxLenString counts runes, not bytes.
func MaxLenString(field, value string, maxLen int) Rule {
	return rule(field, "max_length", fmt.Sprintf("must be at most %d characters long", maxLen), func() bool {
		return utf8.RuneCountInString(value) <= maxLen
	})
}

func ValidEmail(field, value string) Rule {
	return rule(field, "email", "must be a valid email address", func() bool {
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return false
		}
		at := strings.LastIndexByte(value, '@')
		domain := value[at+1:]
		return at > 0 && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
	})
}

// ValidURL accepts absolute http(s) URLs with a host.
func ValidURL(field, value string) Rule {
	return rule(field, "url", "must be a valid http or https URL", func() bool {
		u, err := url.Parse(value)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	})
}

var identifierRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidIdentifier accepts lowercase dotted identifiers such as "task.assigned".
func ValidIdentifier(field, value string) Rule {
	return rule(field, "identifier", "must contain only lowercase letters, digits, dots, dashes and underscores", func() bool {
		return identifierRegex.MatchString(value)
	})
}
