package dispatch

import "strings"

// MatchPath matches a request path against a route pattern segment by
// segment. Segment counts must agree exactly. A bare "*" segment matches
// any single segment without capturing; "{name}" and ":name" segments
// capture into the returned parameter map; everything else matches
// literally.
func MatchPath(pattern, path string) (map[string]string, bool) {
	patternSegs := splitSegments(pattern)
	pathSegs := splitSegments(path)

	if len(patternSegs) != len(pathSegs) {
		return nil, false
	}

	params := map[string]string{}
	for i, seg := range patternSegs {
		actual := pathSegs[i]

		switch {
		case seg == "*":
			// Wildcard: matches, never captures.
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			name := seg[1 : len(seg)-1]
			if name == "" {
				return nil, false
			}
			params[name] = actual
		case strings.HasPrefix(seg, ":") && len(seg) > 1:
			params[seg[1:]] = actual
		default:
			if seg != actual {
				return nil, false
			}
		}
	}
	return params, true
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
