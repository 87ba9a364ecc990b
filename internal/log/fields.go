package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldMonth      = "month"
	FieldTemplateID = "template_id"
	FieldInstanceID = "instance_id"
	FieldCount      = "count"
)

// Standard component names.
const (
	ComponentApp    = "app"
	ComponentWorker = "worker"
)
