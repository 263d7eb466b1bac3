package agent

import "path"

// MatchPatterns filters names by shell-style glob patterns (*, ?, prefix_*,
// *substr*). Nil, empty, or a lone "*" selects everything. The result keeps
// the input order of names and contains no duplicates; unknown patterns
// simply match nothing.
func MatchPatterns(names, patterns []string) []string {
	if len(patterns) == 0 || (len(patterns) == 1 && patterns[0] == "*") {
		out := make([]string, len(names))
		copy(out, names)
		return out
	}

	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		for _, pattern := range patterns {
			ok, err := path.Match(pattern, name)
			if err != nil {
				continue
			}
			if ok && !seen[name] {
				seen[name] = true
				out = append(out, name)
				break
			}
		}
	}
	return out
}
