package tools

// Result is the unified return type from tool execution. Data serializes to
// the caller; Err stays internal so transport layers decide how much detail
// leaves the process.
type Result struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	IsError bool   `json:"is_error"`
	Err     error  `json:"-"`
}

func NewResult(data any) *Result {
	return &Result{Data: data}
}

func MessageResult(msg string) *Result {
	return &Result{Message: msg}
}

func ErrorResult(message string) *Result {
	return &Result{Message: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
