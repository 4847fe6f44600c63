// Package errors provides structured error handling for marpsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Provider errors (embedding service, network)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (index, search)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryProvider indicates embedding-provider and network errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex = "ERR_202_CORRUPT_INDEX"
	ErrCodeIndexLocked  = "ERR_203_INDEX_LOCKED"

	// Provider errors (300-399): retryable by default
	ErrCodeEmbeddingUnavailable = "ERR_301_EMBEDDING_UNAVAILABLE"
	ErrCodeProviderTimeout      = "ERR_302_PROVIDER_TIMEOUT"

	// Validation errors (400-499): terminal
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPageMap = "ERR_402_INVALID_PAGE_MAP"
	ErrCodeQueryEmpty     = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidTopK    = "ERR_404_INVALID_TOP_K"
	ErrCodeDimension      = "ERR_405_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexWrite   = "ERR_502_INDEX_WRITE"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeQueryTimeout = "ERR_504_QUERY_TIMEOUT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Validation errors are fatal for the document or request that carried them;
// query timeouts only degrade a result set.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryValidation:
		return SeverityFatal
	case CategoryProvider:
		return SeverityError
	default:
		if code == ErrCodeQueryTimeout {
			return SeverityWarning
		}
		return SeverityError
	}
}

// retryableCodes lists codes whose operations may be retried with backoff.
var retryableCodes = map[string]bool{
	ErrCodeEmbeddingUnavailable: true,
	ErrCodeProviderTimeout:      true,
	ErrCodeIndexWrite:           true,
	ErrCodeIndexLocked:          true,
}

// isRetryableCode reports whether a code represents a retryable failure.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
