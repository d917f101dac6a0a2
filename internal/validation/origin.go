package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// OriginError describes a malformed CORS origin.
type OriginError struct {
	Origin string
	Reason string
}

func (e OriginError) Error() string {
	return fmt.Sprintf("invalid origin %q: %s", e.Origin, e.Reason)
}

// ValidateOrigin checks that origin is a bare scheme://host[:port] value as
// browsers send it in the Origin header. "*" is accepted.
func ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return OriginError{Origin: origin, Reason: "malformed URL"}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return OriginError{Origin: origin, Reason: "scheme must be http or https"}
	}
	if parsed.Host == "" {
		return OriginError{Origin: origin, Reason: "host is required"}
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return OriginError{Origin: origin, Reason: "must not contain a path, query or fragment"}
	}
	return nil
}
