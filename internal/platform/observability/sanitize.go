package observability

import "unicode"

// sanitizeString strips control characters and caps the length so request
// supplied values cannot mangle log lines.
func sanitizeString(value string, limit int) string {
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) >= limit {
			break
		}
	}
	return string(cleaned)
}

func sanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func sanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

func sanitizeUserID(uid string) string {
	return sanitizeString(uid, 64)
}
