package dialogue

// Context maps context keys (symptoms, diseases, ...) to the values seen so
// far in a session, in order of first appearance and without duplicates.
type Context map[string][]string

// Clone returns a deep copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// add appends value under key unless it is already present.
func (c Context) add(key, value string) bool {
	for _, existing := range c[key] {
		if existing == value {
			return false
		}
	}
	c[key] = append(c[key], value)
	return true
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
