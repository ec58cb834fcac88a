package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeValidation         ErrorCode = "COMMON_006"
	ErrCodeSerialization      ErrorCode = "COMMON_007"
	ErrCodeDatabaseError      ErrorCode = "COMMON_008"
	ErrCodeCacheError         ErrorCode = "COMMON_009"
	ErrCodeExternalService    ErrorCode = "COMMON_010"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_011"
	ErrCodeNotImplemented     ErrorCode = "COMMON_012"
	ErrCodeRateLimited        ErrorCode = "COMMON_013"
)

// Aliases used by the factory functions in errors.go.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Tokenizer / chunker error codes (raw-text input problems)
const (
	ErrCodeEmptyInput       ErrorCode = "TOK_001"
	ErrCodeMalformedInput   ErrorCode = "TOK_002"
	ErrCodeInvalidChunkSize ErrorCode = "TOK_003"
)

// Gazetteer error codes
const (
	ErrCodeEmptyTerm             ErrorCode = "GAZ_001"
	ErrCodeUnknownLexiconFormat  ErrorCode = "GAZ_002"
	ErrCodeLexiconReadFailed     ErrorCode = "GAZ_003"
	ErrCodeInvalidPatternRule    ErrorCode = "GAZ_004"
	ErrCodeLexiconStoreUnavailable ErrorCode = "GAZ_005"
)

// Annotation store error codes (taxonomy and span-integrity violations)
const (
	ErrCodeUnknownEntityType   ErrorCode = "ANN_001"
	ErrCodeUnknownRelationType ErrorCode = "ANN_002"
	ErrCodeSpanOutOfBounds     ErrorCode = "ANN_003"
	ErrCodeSpanOverlap         ErrorCode = "ANN_004"
	ErrCodeDuplicateEntity     ErrorCode = "ANN_005"
	ErrCodeSelfRelation        ErrorCode = "ANN_006"
	ErrCodeEndpointNotFound    ErrorCode = "ANN_007"
	ErrCodeEntityNotFound      ErrorCode = "ANN_008"
	ErrCodeRelationNotFound    ErrorCode = "ANN_009"
	ErrCodeDocumentMismatch    ErrorCode = "ANN_010"
	ErrCodeDuplicateRelation   ErrorCode = "ANN_011"
	ErrCodeUndoHistoryEmpty    ErrorCode = "ANN_012"
)

// External schema error codes (training-data files and the types file)
const (
	ErrCodeSchemaMalformed        ErrorCode = "SCH_001"
	ErrCodeSchemaEntityRange      ErrorCode = "SCH_002"
	ErrCodeSchemaRelationIndex    ErrorCode = "SCH_003"
	ErrCodeSchemaEmptyTokens      ErrorCode = "SCH_004"
	ErrCodeTaxonomyMalformed      ErrorCode = "SCH_005"
	ErrCodeTaxonomyDuplicateType  ErrorCode = "SCH_006"
	ErrCodeTaxonomyUnknownType    ErrorCode = "SCH_007"
)

// Document error codes
const (
	ErrCodeDocumentNotFound      ErrorCode = "DOC_001"
	ErrCodeDocumentAlreadyExists ErrorCode = "DOC_002"
)

// Dataset error codes
const (
	ErrCodeInvalidSplitRatios ErrorCode = "DATA_001"
	ErrCodeExportFailed       ErrorCode = "DATA_002"
	ErrCodePublishFailed      ErrorCode = "DATA_003"
	ErrCodeEmptyDataset       ErrorCode = "DATA_004"
)

// Training / prediction job error codes
const (
	ErrCodeJobNotFound        ErrorCode = "JOB_001"
	ErrCodeJobInvalidState    ErrorCode = "JOB_002"
	ErrCodeJobAlreadyRunning  ErrorCode = "JOB_003"
	ErrCodeJobStartFailed     ErrorCode = "JOB_004"
	ErrCodeJobExitedNonZero   ErrorCode = "JOB_005"
	ErrCodeJobCanceled        ErrorCode = "JOB_006"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeNotImplemented:     http.StatusNotImplemented,
	ErrCodeRateLimited:        http.StatusTooManyRequests,

	ErrCodeEmptyInput:       http.StatusBadRequest,
	ErrCodeMalformedInput:   http.StatusBadRequest,
	ErrCodeInvalidChunkSize: http.StatusBadRequest,

	ErrCodeEmptyTerm:               http.StatusBadRequest,
	ErrCodeUnknownLexiconFormat:    http.StatusBadRequest,
	ErrCodeLexiconReadFailed:       http.StatusInternalServerError,
	ErrCodeInvalidPatternRule:      http.StatusBadRequest,
	ErrCodeLexiconStoreUnavailable: http.StatusServiceUnavailable,

	ErrCodeUnknownEntityType:   http.StatusUnprocessableEntity,
	ErrCodeUnknownRelationType: http.StatusUnprocessableEntity,
	ErrCodeSpanOutOfBounds:     http.StatusUnprocessableEntity,
	ErrCodeSpanOverlap:         http.StatusConflict,
	ErrCodeDuplicateEntity:     http.StatusConflict,
	ErrCodeSelfRelation:        http.StatusUnprocessableEntity,
	ErrCodeEndpointNotFound:    http.StatusUnprocessableEntity,
	ErrCodeEntityNotFound:      http.StatusNotFound,
	ErrCodeRelationNotFound:    http.StatusNotFound,
	ErrCodeDocumentMismatch:    http.StatusUnprocessableEntity,
	ErrCodeDuplicateRelation:   http.StatusConflict,
	ErrCodeUndoHistoryEmpty:    http.StatusConflict,

	ErrCodeSchemaMalformed:       http.StatusBadRequest,
	ErrCodeSchemaEntityRange:     http.StatusBadRequest,
	ErrCodeSchemaRelationIndex:   http.StatusBadRequest,
	ErrCodeSchemaEmptyTokens:     http.StatusBadRequest,
	ErrCodeTaxonomyMalformed:     http.StatusBadRequest,
	ErrCodeTaxonomyDuplicateType: http.StatusBadRequest,
	ErrCodeTaxonomyUnknownType:   http.StatusBadRequest,

	ErrCodeDocumentNotFound:      http.StatusNotFound,
	ErrCodeDocumentAlreadyExists: http.StatusConflict,

	ErrCodeInvalidSplitRatios: http.StatusBadRequest,
	ErrCodeExportFailed:       http.StatusInternalServerError,
	ErrCodePublishFailed:      http.StatusInternalServerError,
	ErrCodeEmptyDataset:       http.StatusUnprocessableEntity,

	ErrCodeJobNotFound:       http.StatusNotFound,
	ErrCodeJobInvalidState:   http.StatusConflict,
	ErrCodeJobAlreadyRunning: http.StatusConflict,
	ErrCodeJobStartFailed:    http.StatusInternalServerError,
	ErrCodeJobExitedNonZero:  http.StatusInternalServerError,
	ErrCodeJobCanceled:       http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeNotImplemented:     "not implemented",
	ErrCodeRateLimited:        "rate limit exceeded",

	ErrCodeEmptyInput:       "input text is empty",
	ErrCodeMalformedInput:   "input text is malformed",
	ErrCodeInvalidChunkSize: "invalid chunk size",

	ErrCodeEmptyTerm:               "gazetteer term is empty",
	ErrCodeUnknownLexiconFormat:    "unknown lexicon format",
	ErrCodeLexiconReadFailed:       "failed to read lexicon",
	ErrCodeInvalidPatternRule:      "invalid pattern rule",
	ErrCodeLexiconStoreUnavailable: "lexicon store unavailable",

	ErrCodeUnknownEntityType:   "unknown entity type",
	ErrCodeUnknownRelationType: "unknown relation type",
	ErrCodeSpanOutOfBounds:     "span is out of token bounds",
	ErrCodeSpanOverlap:         "span overlaps an existing entity",
	ErrCodeDuplicateEntity:     "duplicate entity",
	ErrCodeSelfRelation:        "relation head and tail are identical",
	ErrCodeEndpointNotFound:    "relation endpoint does not exist",
	ErrCodeEntityNotFound:      "entity not found",
	ErrCodeRelationNotFound:    "relation not found",
	ErrCodeDocumentMismatch:    "annotation references a different document",
	ErrCodeDuplicateRelation:   "duplicate relation",
	ErrCodeUndoHistoryEmpty:    "no undo history",

	ErrCodeSchemaMalformed:       "malformed training data file",
	ErrCodeSchemaEntityRange:     "entity span exceeds token bounds",
	ErrCodeSchemaRelationIndex:   "relation references an out-of-range entity index",
	ErrCodeSchemaEmptyTokens:     "record has no tokens",
	ErrCodeTaxonomyMalformed:     "malformed type taxonomy file",
	ErrCodeTaxonomyDuplicateType: "duplicate type in taxonomy",
	ErrCodeTaxonomyUnknownType:   "type not present in taxonomy",

	ErrCodeDocumentNotFound:      "document not found",
	ErrCodeDocumentAlreadyExists: "document already exists",

	ErrCodeInvalidSplitRatios: "split ratios must be positive and sum to 1",
	ErrCodeExportFailed:       "dataset export failed",
	ErrCodePublishFailed:      "dataset publish failed",
	ErrCodeEmptyDataset:       "dataset contains no records",

	ErrCodeJobNotFound:       "job not found",
	ErrCodeJobInvalidState:   "invalid job state transition",
	ErrCodeJobAlreadyRunning: "a job is already running",
	ErrCodeJobStartFailed:    "failed to start job process",
	ErrCodeJobExitedNonZero:  "job process exited with a non-zero status",
	ErrCodeJobCanceled:       "job was canceled",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
