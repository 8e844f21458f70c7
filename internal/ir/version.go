package ir

// Version constants reported by the CLI and the S3 front end.
const (
	// TemplateVersion is the template language version.
	TemplateVersion = "1"

	// Version is the dbgen release version.
	Version = "0.1.0"
)
