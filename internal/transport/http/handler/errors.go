package handler

const (
	errInternalServer   = "Internal server error"
	errDuplicateInstance = "A task with this task_name/task_instance already exists"
)
