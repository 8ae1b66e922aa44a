package analytics

import "strings"

// actionRule правило выбора рекомендаций по нормализованной причине отказа
type actionRule struct {
	name    string
	matches func(reason string) bool
	actions []string
}

// actionRules проверяются сверху вниз, срабатывает первое совпавшее правило.
// Последнее правило совпадает всегда.
var actionRules = []actionRule{
	{
		name:    "lubrication",
		matches: containsAny("lub", "bearing"),
		actions: []string{
			"Increase lubrication frequency; verify grease specification and schedule.",
			"Inspect bearings for play and vibration; balance rotating parts.",
		},
	},
	{
		name:    "thermal",
		matches: containsAny("overheat", "temp"),
		actions: []string{
			"Check cooling and ventilation; clean fins and filters; verify ambient conditions.",
			"Run a thermal scan under load; set alert thresholds in SCADA.",
		},
	},
	{
		name:    "electrical",
		matches: containsAny("elect", "motor"),
		actions: []string{
			"Run an insulation resistance test; check terminals for loose contacts.",
			"Measure current imbalance; plan a motor alignment check.",
		},
	},
	{
		name:    "alignment",
		matches: containsAny("alignment", "vibration"),
		actions: []string{
			"Perform laser alignment; tighten mounts; update torque logs.",
			"Schedule vibration analysis (1x/3x harmonics).",
		},
	},
	{
		name:    "sealing",
		matches: containsAny("seal", "leak"),
		actions: []string{
			"Replace seals and gaskets; verify shaft finish and concentricity.",
			"Add leak checks to the preventive maintenance list.",
		},
	},
	{
		name:    "generic",
		matches: func(string) bool { return true },
		actions: []string{
			"Review the latest breakdown log with a 5-Why analysis; add a preventive step to PM.",
			"Increase PM frequency for the next 2 cycles and monitor KPIs.",
		},
	},
}

// RecommendActions возвращает список действий для причины отказа
func RecommendActions(reason string) []string {
	r := normalizeReason(reason)
	for _, rule := range actionRules {
		if rule.matches(r) {
			out := make([]string, len(rule.actions))
			copy(out, rule.actions)
			return out
		}
	}
	return nil
}

func containsAny(keywords ...string) func(string) bool {
	return func(s string) bool {
		for _, k := range keywords {
			if strings.Contains(s, k) {
				return true
			}
		}
		return false
	}
}

// normalizeReason обрезает пробелы и приводит к нижнему регистру
func normalizeReason(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
