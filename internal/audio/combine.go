package audio

import "strings"

// CombineTranscriptions joins chunk transcriptions in order. Pieces are
// trimmed, empty pieces are dropped and a single space separates the rest.
func CombineTranscriptions(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	out := strings.Join(kept, " ")
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}
