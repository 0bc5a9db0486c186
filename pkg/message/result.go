package message

// Result is the sum type every pipeline stage and the dispatcher return:
// either a Success carrying an optional payload, or a Failure carrying
// the causing error. Exactly one of the two is meaningful; check Succeeded.
type Result struct {
	succeeded bool
	payload   any
	err       error
	message   Message
	duplicate bool
}

// Success builds a successful Result, optionally carrying a reply payload.
func Success(payload any, msg Message) Result {
	return Result{succeeded: true, payload: payload, message: msg}
}

// SuccessDuplicate builds a successful Result flagged as a deduplicated
// no-op (the inbox short-circuit).
func SuccessDuplicate(msg Message) Result {
	return Result{succeeded: true, message: msg, duplicate: true}
}

// Failure builds a failed Result carrying err.
func Failure(err error, msg Message) Result {
	return Result{succeeded: false, err: err, message: msg}
}

func (r Result) Succeeded() bool   { return r.succeeded }
func (r Result) Failed() bool      { return !r.succeeded }
func (r Result) Duplicate() bool   { return r.duplicate }
func (r Result) Payload() any      { return r.payload }
func (r Result) Err() error        { return r.err }
func (r Result) Message() Message  { return r.message }

// BatchResult aggregates N per-item Results in original index order.
type BatchResult struct {
	results []Result
}

// NewBatchResult builds a BatchResult from per-item results, preserving
// order.
func NewBatchResult(results []Result) BatchResult {
	cp := make([]Result, len(results))
	copy(cp, results)
	return BatchResult{results: cp}
}

// Total is the number of items in the batch.
func (b BatchResult) Total() int { return len(b.results) }

// At returns the result at index i.
func (b BatchResult) At(i int) Result { return b.results[i] }

// Results returns the full ordered slice.
func (b BatchResult) Results() []Result {
	cp := make([]Result, len(b.results))
	copy(cp, b.results)
	return cp
}

// Successes returns the subset that succeeded, in original order.
func (b BatchResult) Successes() []Result {
	return b.filter(func(r Result) bool { return r.succeeded })
}

// Failures returns the subset that failed, in original order.
func (b BatchResult) Failures() []Result {
	return b.filter(func(r Result) bool { return !r.succeeded })
}

func (b BatchResult) filter(pred func(Result) bool) []Result {
	out := make([]Result, 0, len(b.results))
	for _, r := range b.results {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// AllSucceeded reports whether every item succeeded. Vacuously true for
// an empty batch.
func (b BatchResult) AllSucceeded() bool {
	for _, r := range b.results {
		if !r.succeeded {
			return false
		}
	}
	return true
}

// AnySucceeded reports whether at least one item succeeded. False for an
// empty batch.
func (b BatchResult) AnySucceeded() bool {
	for _, r := range b.results {
		if r.succeeded {
			return true
		}
	}
	return false
}

// AllFailed reports whether every item failed. Vacuously true for an
// empty batch, matching AllSucceeded's vacuous truth for symmetry.
func (b BatchResult) AllFailed() bool {
	for _, r := range b.results {
		if r.succeeded {
			return false
		}
	}
	return true
}
