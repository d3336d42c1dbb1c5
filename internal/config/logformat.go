package config

// ValidLogFormats contains the supported log output formats.
var ValidLogFormats = []string{
	"text", // key=value lines (default)
	"json", // one JSON object per line
}

// DefaultLogFormat is the default log output format.
const DefaultLogFormat = "text"

// IsValidLogFormat returns true if the format name is valid.
func IsValidLogFormat(format string) bool {
	for _, valid := range ValidLogFormats {
		if format == valid {
			return true
		}
	}
	return false
}

// ValidateLogFormat returns the format if valid, or the default if invalid.
func ValidateLogFormat(format string) string {
	if IsValidLogFormat(format) {
		return format
	}
	return DefaultLogFormat
}
