// Package pattern classifies arpwatch log lines against a fixed, ordered
// rule table. Rules are evaluated in declared order and the first match
// wins, so a line never increments more than one event counter.
package pattern

import (
	"regexp"
	"strings"
)

// Rule pairs an event label with a line matcher. Matching is
// case-insensitive.
type Rule struct {
	Label string
	// Phrase is matched as a literal substring when Pattern is nil.
	Phrase  string
	Pattern *regexp.Regexp
}

// Matches reports whether the rule fires for the given line.
func (r Rule) Matches(line string) bool {
	if r.Pattern != nil {
		return r.Pattern.MatchString(line)
	}
	return strings.Contains(strings.ToLower(line), r.Phrase)
}

// Table is an ordered list of rules built once at startup. It is immutable
// after construction and safe for concurrent use.
type Table struct {
	rules []Rule
}

// NewTable builds a table from rules in priority order. Phrases are
// lowercased once so per-line matching only folds the line.
func NewTable(rules []Rule) *Table {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	for i := range owned {
		owned[i].Phrase = strings.ToLower(owned[i].Phrase)
	}
	return &Table{rules: owned}
}

// Match returns the label of the first rule that fires, or "" and false
// when no rule matches.
func (t *Table) Match(line string) (string, bool) {
	for _, r := range t.rules {
		if r.Matches(line) {
			return r.Label, true
		}
	}
	return "", false
}

// Labels returns the rule labels in priority order.
func (t *Table) Labels() []string {
	labels := make([]string, len(t.rules))
	for i, r := range t.rules {
		labels[i] = r.Label
	}
	return labels
}

// suppressedFlipFlop matches arpwatch's "suppressed DECnet flip flop"
// report. It has to outrank the plain flip flop rule or those lines would
// be counted twice under the wrong label.
var suppressedFlipFlop = regexp.MustCompile(`(?i)suppressed.*flip flop`)

// DefaultRules is the arpwatch event table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "suppressed_flip_flop", Pattern: suppressedFlipFlop},
		{Label: "flip_flop", Phrase: "flip flop"},
		{Label: "new_station", Phrase: "new station"},
		{Label: "new_activity", Phrase: "new activity"},
		{Label: "changed_ethernet_address", Phrase: "changed ethernet address"},
		{Label: "reused_old_ethernet_address", Phrase: "reused old ethernet address"},
		{Label: "ethernet_mismatch", Phrase: "ethernet mismatch"},
		{Label: "ethernet_broadcast", Phrase: "ethernet broadcast"},
		{Label: "ip_broadcast", Phrase: "ip broadcast"},
		{Label: "bogon", Phrase: "bogon"},
	}
}
