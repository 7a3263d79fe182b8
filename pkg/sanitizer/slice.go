package sanitizer

import "sort"

func NormalizeStringSlice(items []string, normalizer func(string) string) []string {
	if len(items) == 0 {
		return []string{}
	}

	seen := make(map[string]bool)
	result := make([]string, 0, len(items))

	for _, item := range items {
		normalized := normalizer(item)

		if normalized == "" {
			continue
		}

		if seen[normalized] {
			continue
		}

		seen[normalized] = true
		result = append(result, normalized)
	}

	return result
}

// NormalizeDates dedupes "2006-01-02" dates and sorts them.
func NormalizeDates(dates []string) []string {
	out := NormalizeStringSlice(dates, NormalizeKey)
	sort.Strings(out)
	return out
}

// NormalizeDays dedupes weekday or month-day numbers and sorts them.
func NormalizeDays(days []int) []int {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
