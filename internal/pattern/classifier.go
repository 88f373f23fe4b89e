package pattern

import "strings"

// Result is the outcome of classifying one line.
type Result struct {
	Label string
	// Matched is true when a rule fired and Label is set.
	Matched bool
	// DaemonLine is true when the line carries the monitored daemon's log
	// prefix. Unmatched daemon lines are counted as unrecognized by the
	// pipeline; unmatched non-daemon lines are ignored.
	DaemonLine bool
}

// Classifier runs lines through a rule table.
type Classifier struct {
	table        *Table
	daemonPrefix string
}

// NewClassifier creates a classifier over the given table. daemonName is
// the syslog tag of the monitored daemon, e.g. "arpwatch".
func NewClassifier(table *Table, daemonName string) *Classifier {
	return &Classifier{
		table:        table,
		daemonPrefix: strings.ToLower(daemonName) + ":",
	}
}

// Classify classifies a single raw log line.
func (c *Classifier) Classify(line string) Result {
	res := Result{
		DaemonLine: strings.Contains(strings.ToLower(line), c.daemonPrefix),
	}
	if label, ok := c.table.Match(line); ok {
		res.Label = label
		res.Matched = true
	}
	return res
}

// Labels returns the labels of the underlying table in priority order.
func (c *Classifier) Labels() []string {
	return c.table.Labels()
}
