package models

// AddToSet appends v unless it is already present. The returned slice is never nil.
func AddToSet[T comparable](list []T, v T) ([]T, bool) {
	for _, existing := range list {
		if existing == v {
			return nonNil(list), false
		}
	}
	return append(nonNil(list), v), true
}

// RemoveFromSet drops every occurrence of v. The returned slice is never nil.
func RemoveFromSet[T comparable](list []T, v T) ([]T, bool) {
	out := make([]T, 0, len(list))
	removed := false
	for _, existing := range list {
		if existing == v {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		return nonNil(list), false
	}
	return out, true
}

// RemoveAllFromSet drops every element of vs from list.
func RemoveAllFromSet[T comparable](list []T, vs []T) ([]T, bool) {
	if len(vs) == 0 {
		return nonNil(list), false
	}
	drop := make(map[T]struct{}, len(vs))
	for _, v := range vs {
		drop[v] = struct{}{}
	}
	return FilterSet(list, func(v T) bool {
		_, ok := drop[v]
		return !ok
	})
}

// FilterSet keeps the elements for which keep returns true.
func FilterSet[T comparable](list []T, keep func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(list))
	for _, v := range list {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out, len(out) != len(list)
}

// SetContains reports whether v is in list.
func SetContains[T comparable](list []T, v T) bool {
	for _, existing := range list {
		if existing == v {
			return true
		}
	}
	return false
}

// Dedupe returns list without repeated elements, keeping first occurrences.
func Dedupe[T comparable](list []T) ([]T, bool) {
	seen := make(map[T]struct{}, len(list))
	return FilterSet(list, func(v T) bool {
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
		return true
	})
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
