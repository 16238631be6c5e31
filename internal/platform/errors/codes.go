// Package errors provides structured domain error handling.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeRequestBodyInvalid marks an unparseable transport payload.
	CodeRequestBodyInvalid Code = "REQUEST_BODY_INVALID"

	// Template errors
	CodeTemplateNotFound        Code = "TEMPLATE_NOT_FOUND"
	CodeTemplateNameEmpty       Code = "TEMPLATE_NAME_EMPTY"
	CodeTemplateCreateFlagUnset Code = "TEMPLATE_CREATE_FLAG_UNSET"
	CodeTemplateVersionNotFound Code = "TEMPLATE_VERSION_NOT_FOUND"

	// Merge errors
	CodeMergeTypeListEmpty    Code = "MERGE_TYPE_LIST_EMPTY"
	CodeMergeTypeListTooLong  Code = "MERGE_TYPE_LIST_TOO_LONG"
	CodeMergeDuplicateType    Code = "MERGE_DUPLICATE_TYPE"
	CodeMergeTemplatesMissing Code = "MERGE_TEMPLATES_MISSING"

	// Tenant profile errors
	CodeTenantNotFound         Code = "TENANT_NOT_FOUND"
	CodeTenantIDEmpty          Code = "TENANT_ID_EMPTY"
	CodeTenantTypeCountInvalid Code = "TENANT_TYPE_COUNT_INVALID"
	CodeTenantDuplicateType    Code = "TENANT_DUPLICATE_TYPE"
	CodeTenantUnknownType      Code = "TENANT_UNKNOWN_TYPE"

	// Feedback errors
	CodeFeedbackNotFound           Code = "FEEDBACK_NOT_FOUND"
	CodeFeedbackEmailIDEmpty       Code = "FEEDBACK_EMAIL_ID_EMPTY"
	CodeFeedbackCategoryEmpty      Code = "FEEDBACK_CORRECTED_CATEGORY_EMPTY"
	CodeFeedbackRatingOutOfRange   Code = "FEEDBACK_RATING_OUT_OF_RANGE"
	CodeFeedbackInvalidStatus      Code = "FEEDBACK_INVALID_STATUS"
	CodeFeedbackInvalidTransition  Code = "FEEDBACK_INVALID_STATUS_TRANSITION"
	CodeFeedbackReviewerEmpty      Code = "FEEDBACK_REVIEWER_EMPTY"
	CodeFeedbackFilterInvalid      Code = "FEEDBACK_FILTER_INVALID"
	CodeFeedbackAlreadyUsed        Code = "FEEDBACK_ALREADY_USED"
	CodeFeedbackConcurrentReview   Code = "FEEDBACK_CONCURRENT_REVIEW"

	// Metrics errors
	CodeMetricsDateInvalid Code = "METRICS_DATE_INVALID"
	CodeMetricsNotFound    Code = "METRICS_NOT_FOUND"

	// Export errors
	CodeExportMinQualityInvalid Code = "EXPORT_MIN_QUALITY_INVALID"

	// Grant errors
	CodeGrantInvalid Code = "GRANT_INVALID"
	CodeGrantExpired Code = "GRANT_EXPIRED"

	// Storage errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeRequestBodyInvalid,
		CodeTemplateNameEmpty,
		CodeTemplateCreateFlagUnset,
		CodeMergeTypeListEmpty,
		CodeMergeTypeListTooLong,
		CodeMergeDuplicateType,
		CodeTenantIDEmpty,
		CodeTenantTypeCountInvalid,
		CodeTenantDuplicateType,
		CodeTenantUnknownType,
		CodeFeedbackEmailIDEmpty,
		CodeFeedbackCategoryEmpty,
		CodeFeedbackRatingOutOfRange,
		CodeFeedbackInvalidStatus,
		CodeFeedbackReviewerEmpty,
		CodeFeedbackFilterInvalid,
		CodeMetricsDateInvalid,
		CodeExportMinQualityInvalid:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodeFeedbackInvalidTransition,
		CodeFeedbackAlreadyUsed,
		CodeFeedbackConcurrentReview:
		return http.StatusConflict

	// Not found - resource doesn't exist
	case CodeTemplateNotFound,
		CodeTemplateVersionNotFound,
		CodeMergeTemplatesMissing,
		CodeTenantNotFound,
		CodeFeedbackNotFound,
		CodeMetricsNotFound:
		return http.StatusNotFound

	case CodeGrantInvalid, CodeGrantExpired:
		return http.StatusUnauthorized

	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
