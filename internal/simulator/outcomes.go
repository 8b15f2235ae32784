package simulator

import (
	"fmt"
	"sort"
	"strings"
)

// Outcome is an operation class whose success the simulator controls.
type Outcome string

// Outcome classes.
const (
	OutcomeStart        Outcome = "start"
	OutcomeStop         Outcome = "stop"
	OutcomeUpdate       Outcome = "update"
	OutcomeServiceCheck Outcome = "service-check"
	OutcomeShutdown     Outcome = "shutdown"
)

// AllOutcomes lists every outcome class.
var AllOutcomes = []Outcome{OutcomeStart, OutcomeStop, OutcomeUpdate, OutcomeServiceCheck, OutcomeShutdown}

// Outcomes is the set of operation classes allowed to succeed.
type Outcomes map[Outcome]bool

// Allow returns the set containing exactly the given classes.
func Allow(classes ...Outcome) Outcomes {
	o := make(Outcomes, len(classes))
	for _, c := range classes {
		o[c] = true
	}
	return o
}

// AllowAll returns the set containing every class.
func AllowAll() Outcomes {
	return Allow(AllOutcomes...)
}

// Allows reports whether class succeeds.
func (o Outcomes) Allows(class Outcome) bool {
	return o[class]
}

func (o Outcomes) String() string {
	names := make([]string, 0, len(o))
	for c, ok := range o {
		if ok {
			names = append(names, string(c))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// ParseOutcomes parses a comma-separated class list. "all" and "none" are
// accepted as shorthands.
func ParseOutcomes(s string) (Outcomes, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "all":
		return AllowAll(), nil
	case "", "none":
		return Outcomes{}, nil
	}

	o := Outcomes{}
	for _, part := range strings.Split(s, ",") {
		class := Outcome(strings.TrimSpace(part))
		if !validOutcome(class) {
			return nil, fmt.Errorf("unknown outcome class %q (valid: %s)", class, AllowAll())
		}
		o[class] = true
	}
	return o, nil
}

func validOutcome(class Outcome) bool {
	for _, c := range AllOutcomes {
		if c == class {
			return true
		}
	}
	return false
}
