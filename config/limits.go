package config

// Security limits shared between the upload API and the worker. Defaults
// match the values the API enforces at upload time.
const (
	DefaultMaxRows       = 500000
	DefaultMaxFieldChars = 10000
	DefaultMaxRetries    = 3
)

// ImportLimits bundles the knobs the import pipeline needs so they can be
// passed in explicitly instead of read ambiently mid-run.
type ImportLimits struct {
	MaxRows       int
	MaxFieldChars int
	MaxRetries    int
}

func GetImportLimits() ImportLimits {
	return ImportLimits{
		MaxRows:       GetEnvInt("MAX_ROWS", DefaultMaxRows),
		MaxFieldChars: GetEnvInt("MAX_FIELD_CHARS", DefaultMaxFieldChars),
		MaxRetries:    GetEnvInt("MAX_RETRIES", DefaultMaxRetries),
	}
}

// GetUploadRoot returns the directory disk-stored run files are relative to.
func GetUploadRoot() string {
	return GetEnvDefault("UPLOAD_ROOT", "./uploads")
}
