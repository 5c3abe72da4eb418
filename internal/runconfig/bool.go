package runconfig

import (
	"fmt"
	"strings"
)

// ParseBool разбирает булево значение в словаре ConfigParser
// (true/false, on/off, yes/no, 1/0 без учёта регистра).
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidFieldType, value)
	}
}

// FormatBool форматирует значение так, как его пишет ConfigParser.
func FormatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
