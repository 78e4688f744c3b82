package orchestrator

import "fmt"

// Outcome accumulates per-service results over one orchestration run. All
// bookkeeping goes through it so partial state cannot diverge between
// parallel slices.
type Outcome struct {
	succeeded []string
	failed    []string
	errors    []string
	totalSize int64
}

func (o *Outcome) Succeed(service string) {
	o.succeeded = append(o.succeeded, service)
}

func (o *Outcome) Fail(service string, err error) {
	o.failed = append(o.failed, service)
	o.errors = append(o.errors, fmt.Sprintf("%s: %v", service, err))
}

// Note records a run-level error that is not attributed to one service's
// backup or restore outcome (e.g. a stop failure).
func (o *Outcome) Note(context string, err error) {
	o.errors = append(o.errors, fmt.Sprintf("%s: %v", context, err))
}

func (o *Outcome) AddSize(bytes int64) {
	o.totalSize += bytes
}

func (o *Outcome) Succeeded() []string { return append([]string{}, o.succeeded...) }
func (o *Outcome) Failed() []string    { return append([]string{}, o.failed...) }
func (o *Outcome) Errors() []string    { return append([]string{}, o.errors...) }
func (o *Outcome) TotalSize() int64    { return o.totalSize }

// Success reports whether every service-level operation succeeded. Stop or
// restart problems recorded via Note do not affect it.
func (o *Outcome) Success() bool { return len(o.failed) == 0 }
