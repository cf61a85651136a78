package toolflow

import "errors"

// Engine errors. Failures inside an invocation are normalized into Result
// values; these sentinels cover programmer errors at the public boundary.
var (
	ErrNilTool        = errors.New("tool is nil")
	ErrDuplicateTool  = errors.New("duplicate tool name")
	ErrToolNotFound   = errors.New("tool not found")
	ErrEmptyPlan      = errors.New("plan has no entries")
	ErrDuplicateEntry = errors.New("duplicate plan entry name")
	ErrEmptyTask      = errors.New("task description is empty")
)
