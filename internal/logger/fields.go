package logger

// Field names shared by every component so log lines can be grepped and
// aggregated consistently.
const (
	FieldLocale     = "locale"
	FieldClass      = "class"
	FieldSlot       = "slot"
	FieldStage      = "stage"
	FieldItemID     = "item_id"
	FieldKey        = "key"
	FieldHandle     = "handle"
	FieldError      = "error"
	FieldDurationMS = "duration_ms"
	FieldCount      = "count"
	FieldPath       = "path"
	FieldModel      = "model"
)
