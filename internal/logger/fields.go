package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the batch job ID
	FieldJobID = "job_id"

	// FieldConversationID is the generated conversation ID
	FieldConversationID = "conversation_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldRecoveryType is the recoverable item type being processed
	FieldRecoveryType = "recovery_type"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the retry attempt number for an item
	FieldAttempt = "attempt"

	// FieldPosition is the batch item position within its job
	FieldPosition = "position"
)
