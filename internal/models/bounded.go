package models

// PushBounded appends item and evicts from the front so that at most limit
// entries remain. Eviction is by insertion order. The input slice is never
// modified in place.
func PushBounded[T any](list []T, item T, limit int) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, item)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RemoveWhere returns list without the entries matching match, and whether
// anything was removed.
func RemoveWhere[T any](list []T, match func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(list))
	removed := false
	for _, item := range list {
		if match(item) {
			removed = true
			continue
		}
		out = append(out, item)
	}
	return out, removed
}

func ContainsWhere[T any](list []T, match func(T) bool) bool {
	for _, item := range list {
		if match(item) {
			return true
		}
	}
	return false
}
