package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig    ErrorCode = "invalid_configuration"
	ErrReadConfig       ErrorCode = "read_config_failed"
	ErrBindFlags        ErrorCode = "bind_flags_failed"
	ErrInvalidTransport ErrorCode = "invalid_transport"
	ErrInvalidFilter    ErrorCode = "invalid_filter_config"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Pipeline errors
	ErrDecodeRecord ErrorCode = "decode_record_failed"
	ErrMainLoop     ErrorCode = "main_loop_failed"

	// Transport errors
	ErrConnect     ErrorCode = "transport_connect_failed"
	ErrSubscribe   ErrorCode = "transport_subscribe_failed"
	ErrPublish     ErrorCode = "transport_publish_failed"
	ErrSourceClose ErrorCode = "transport_source_closed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrInvalidConfig:    "Invalid configuration",
	ErrReadConfig:       "Failed to read config file",
	ErrBindFlags:        "Failed to bind flags",
	ErrInvalidTransport: "Invalid transport mode",
	ErrInvalidFilter:    "Invalid filter configuration",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrDecodeRecord:     "Failed to decode record",
	ErrMainLoop:         "Error in main loop",
	ErrConnect:          "Failed to connect to broker",
	ErrSubscribe:        "Failed to subscribe",
	ErrPublish:          "Failed to publish",
	ErrSourceClose:      "Input source closed unexpectedly",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
