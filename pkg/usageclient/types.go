package usageclient

import "time"

// SchemaV1 tags the snapshot payload this package understands.
const SchemaV1 = "usage_snapshot/v1"

// Entry is one category of a snapshot. Limit is nil exactly when Unlimited is true.
type Entry struct {
	Category  string `json:"category"`
	Used      int64  `json:"used"`
	Limit     *int   `json:"limit"`
	Unlimited bool   `json:"unlimited"`
}

// Remaining returns how many uses are left. ok is false for unlimited categories.
func (e Entry) Remaining() (n int64, ok bool) {
	if e.Unlimited || e.Limit == nil {
		return 0, false
	}
	n = int64(*e.Limit) - e.Used
	if n < 0 {
		n = 0
	}
	return n, true
}

// Snapshot is the usage read model for one subject and period.
type Snapshot struct {
	Schema      string    `json:"schema"`
	Tier        string    `json:"tier"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Categories  []Entry   `json:"categories"`
}

// Entry returns the entry for a category.
func (s Snapshot) Entry(category string) (Entry, bool) {
	for _, e := range s.Categories {
		if e.Category == category {
			return e, true
		}
	}
	return Entry{}, false
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Categories = make([]Entry, len(s.Categories))
	for i, e := range s.Categories {
		if e.Limit != nil {
			l := *e.Limit
			e.Limit = &l
		}
		out.Categories[i] = e
	}
	return out
}

// Decision is an allowed check. Limit is nil exactly when Unlimited is true.
// Degraded means the API answered without reading the counter store.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Category  string `json:"category"`
	Used      int64  `json:"used"`
	Limit     *int   `json:"limit"`
	Unlimited bool   `json:"unlimited"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// RecordResult is the answer to a record. Persisted is false when the API
// could not store the use; the failure is not reported as an error.
type RecordResult struct {
	Count     int64 `json:"count"`
	Persisted bool  `json:"persisted"`
	Skipped   bool  `json:"skipped"`
	Degraded  bool  `json:"-"`
}
