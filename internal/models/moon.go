package models

import "strings"

var moonIcons = map[string]string{
	"new moon":        "🌑",
	"waxing crescent": "🌒",
	"first quarter":   "🌓",
	"waxing gibbous":  "🌔",
	"full moon":       "🌕",
	"waning gibbous":  "🌖",
	"last quarter":    "🌗",
	"third quarter":   "🌗",
	"waning crescent": "🌘",
}

// MoonPhaseIcon maps a provider phase label to an emoji.
func MoonPhaseIcon(phase string) string {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return ""
	}
	if icon, ok := moonIcons[p]; ok {
		return icon
	}

	switch {
	case strings.Contains(p, "new"):
		return "🌑"
	case strings.Contains(p, "full"):
		return "🌕"
	case strings.Contains(p, "first quarter"):
		return "🌓"
	case strings.Contains(p, "quarter"):
		return "🌗"
	case strings.Contains(p, "waxing") && strings.Contains(p, "crescent"):
		return "🌒"
	case strings.Contains(p, "waxing"):
		return "🌔"
	case strings.Contains(p, "waning") && strings.Contains(p, "gibbous"):
		return "🌖"
	case strings.Contains(p, "waning"):
		return "🌘"
	}
	return "🌙"
}
