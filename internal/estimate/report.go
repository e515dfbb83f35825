package estimate

// Status records what happened to one tool during a run.
type Status int

const (
	// StatusOK means the tool was called and its result counted.
	StatusOK Status = iota
	// StatusFailed means the call returned an error.
	StatusFailed
	// StatusSkipped means the tools/list entry had no usable name.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Entry is one line of a report, in the order the run produced it.
type Entry struct {
	Tool    string
	Tokens  int
	Status  Status
	ErrKind string
	Err     error
}

// Report is the outcome of a run. The first entry is always the
// InitializationTool count.
type Report struct {
	Server         string
	Entries        []Entry
	CostPerMillion *float64
}

// Result is a measured tool in the machine-readable summary.
type Result struct {
	Tool   string `json:"tool"`
	Tokens int    `json:"tokens"`
}

// Summary is the machine-readable form of a report.
type Summary struct {
	Server  string   `json:"server"`
	Results []Result `json:"results"`
}

// Results returns the counted entries, initialization first.
func (r *Report) Results() []Result {
	results := []Result{}
	for _, e := range r.Entries {
		if e.Status == StatusOK {
			results = append(results, Result{Tool: e.Tool, Tokens: e.Tokens})
		}
	}
	return results
}

// Summary returns the server and its counted entries.
func (r *Report) Summary() Summary {
	return Summary{Server: r.Server, Results: r.Results()}
}

// TotalTokens sums the counted entries, initialization included.
func (r *Report) TotalTokens() int {
	total := 0
	for _, e := range r.Entries {
		if e.Status == StatusOK {
			total += e.Tokens
		}
	}
	return total
}

// Failures returns the entries whose call failed.
func (r *Report) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out
}

// Priced reports whether the report carries a token price.
func (r *Report) Priced() bool {
	return r.CostPerMillion != nil
}

// Cost prices tokens at the report's rate. It returns 0 for an unpriced
// report.
func (r *Report) Cost(tokens int) float64 {
	if r.CostPerMillion == nil {
		return 0
	}
	return Cost(tokens, *r.CostPerMillion)
}

// Skipped returns the entries for tools/list elements without a usable
// name.
func (r *Report) Skipped() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status == StatusSkipped {
			out = append(out, e)
		}
	}
	return out
}
