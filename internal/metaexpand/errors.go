package metaexpand

// RequestParameterInvalidError rejects a whole expansion request.
type RequestParameterInvalidError struct {
	Message string
}

func (e *RequestParameterInvalidError) Error() string { return e.Message }

// ToolInputsNotReadyError reports an input collection that is still being
// populated. The request can be retried later.
type ToolInputsNotReadyError struct {
	Message string
}

func (e *ToolInputsNotReadyError) Error() string { return e.Message }

// ToolMetaParameterError reports a malformed batch value.
type ToolMetaParameterError struct {
	Message string
}

func (e *ToolMetaParameterError) Error() string { return e.Message }

const (
	linkedMismatchMessage = "Failed to match linked batch selections. Please select equal number of data files."
	cannotMatchMessage    = "Cannot match collection types."
	notPopulatedMessage   = "An input collection is not populated."
)
