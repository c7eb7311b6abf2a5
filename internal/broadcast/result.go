package broadcast

// Result accumulates the outcome of one broadcast run. It is owned by the
// engine for the duration of the run and returned to the caller as the final
// summary; progress observers only ever see snapshot copies.
type Result struct {
	// Total is the number of recipients targeted at snapshot time. Fixed.
	Total int
	// Successful and Failed are monotonically incrementing counters.
	Successful int
	Failed     int
	// Blocked lists recipients retired during this run.
	Blocked []int64
	// Errors maps recipient id to the last error text recorded for it.
	Errors map[int64]string
}

func newResult(total int) *Result {
	return &Result{Total: total, Errors: map[int64]string{}}
}

func (r *Result) addSuccess() { r.Successful++ }

func (r *Result) addFailure(id int64, errText string, blocked bool) {
	r.Failed++
	r.Errors[id] = errText
	if blocked {
		r.Blocked = append(r.Blocked, id)
	}
}

// SuccessRate returns the percentage of successful sends, 0 when nothing was
// targeted.
func (r *Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.Total) * 100
}

// Snapshot returns a deep copy safe to hand to observers while the run is
// still mutating the original.
func (r *Result) Snapshot() Result {
	cp := *r
	cp.Blocked = append([]int64(nil), r.Blocked...)
	cp.Errors = make(map[int64]string, len(r.Errors))
	for k, v := range r.Errors {
		cp.Errors[k] = v
	}
	return cp
}
