package projects

// DistinctTags returns every tag carried by any project, once, in order of
// first appearance.
func DistinctTags(list []Project) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, p := range list {
		for _, t := range p.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}

// Filter returns the projects carrying selection, keeping their relative
// order. All returns list unchanged. A selection nobody carries yields an
// empty result rather than falling back to All.
func Filter(list []Project, selection string) []Project {
	if selection == All {
		return list
	}
	out := []Project{}
	for _, p := range list {
		if p.HasTag(selection) {
			out = append(out, p)
		}
	}
	return out
}

// Selection normalizes a raw filter value; empty means All.
func Selection(raw string) string {
	if raw == "" {
		return All
	}
	return raw
}
