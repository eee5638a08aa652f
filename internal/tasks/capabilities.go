package tasks

// MissingCapabilities returns the entries of required that are absent from granted, in required order.
//
// Duplicates in required are reported once. The result is nil when nothing is missing.
func MissingCapabilities(required, granted []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, c := range granted {
		have[c] = struct{}{}
	}

	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, c := range required {
		if _, ok := have[c]; ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		missing = append(missing, c)
	}
	return missing
}
