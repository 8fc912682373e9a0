package dispatch

import (
	"strconv"
	"strings"
)

// Format fills template with the feed title, entry title and link. Slots are
// written {0}, {1} and {2}; an empty {} takes the next argument in order. {{ and }}
// produce literal braces. Anything else inside braces is kept verbatim.
func Format(template, feedTitle, entryTitle, link string) string {
	args := []string{feedTitle, entryTitle, link}

	var b strings.Builder
	b.Grow(len(template) + len(feedTitle) + len(entryTitle) + len(link))

	next := 0
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			slot := template[i+1 : i+end]
			idx := next
			if slot != "" {
				n, err := strconv.Atoi(slot)
				if err != nil || n < 0 || n >= len(args) {
					b.WriteString(template[i : i+end+1])
					i += end
					continue
				}
				idx = n
			} else {
				next++
			}
			if idx < len(args) {
				b.WriteString(args[idx])
			} else {
				b.WriteString(template[i : i+end+1])
			}
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
