package wizard

import "net/url"

// Location returns base with the step query parameter set to s. Other query
// parameters on base are kept. A base that does not parse is returned with
// the parameter appended.
func Location(base string, s Step) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + StepParam + "=" + s.String()
	}
	q := u.Query()
	q.Set(StepParam, s.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// StepFromQuery reads the step from a query string. ok is false when the
// parameter is absent, which marks a fresh entry.
func StepFromQuery(q url.Values) (s Step, ok bool) {
	if !q.Has(StepParam) {
		return StepAccount, false
	}
	return ParseStep(q.Get(StepParam)), true
}
