package usageclient

// Reconcile merges a fetched snapshot into the displayed one.
//
// Within the same period every category keeps the larger used value, so a
// read that raced an increment never moves the display backwards. A newer
// period replaces the display wholesale. An older period is a stale read
// across a rollover and is dropped; accepted is false in that case.
func Reconcile(displayed *Snapshot, fetched Snapshot) (merged Snapshot, accepted bool) {
	if displayed == nil || fetched.PeriodStart.After(displayed.PeriodStart) {
		return fetched.clone(), true
	}
	if fetched.PeriodStart.Before(displayed.PeriodStart) {
		return displayed.clone(), false
	}

	merged = fetched.clone()
	for i, e := range merged.Categories {
		if prev, ok := displayed.Entry(e.Category); ok && prev.Used > e.Used {
			merged.Categories[i].Used = prev.Used
		}
	}
	return merged, true
}
