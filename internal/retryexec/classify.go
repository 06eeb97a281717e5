package retryexec

// NonRetryableStatusCodes are the HTTP status codes spec.md §4.6 names
// as never worth retrying.
var NonRetryableStatusCodes = map[int]bool{
	400: true,
	401: true,
	403: true,
	404: true,
}

// NonRetryableClasses are the symbolic exception classes spec.md §4.6
// names as never worth retrying.
var NonRetryableClasses = map[string]bool{
	"ValidationError": true,
	"TypeError":       true,
}

// ClassifyStatusCode reports whether an HTTP response status should
// short-circuit retries.
func ClassifyStatusCode(status int) bool {
	return NonRetryableStatusCodes[status]
}

// ClassifyExceptionClass reports whether a symbolic exception class
// should short-circuit retries.
func ClassifyExceptionClass(class string) bool {
	return NonRetryableClasses[class]
}
