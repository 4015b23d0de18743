package fallback

import "strings"

// render substitutes every {name} placeholder present in vars; unknown placeholders stay as they are.
func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
