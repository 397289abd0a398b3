package types

import "fmt"

// OutcomeKind is the property an outcome record classifies
type OutcomeKind string

const (
	Pause      OutcomeKind = "Pause"
	Loss       OutcomeKind = "Loss"
	Corruption OutcomeKind = "Corruption"
)

// OutcomeRecord is an immutable verification result
type OutcomeRecord struct {
	subject string
	zone    string
	fault   FaultKind
	kind    OutcomeKind
	value   bool
	skipped bool
	detail  string
}

// NewOutcome builds a record; value true means the property was observed
func NewOutcome(subject string, fault FaultKind, kind OutcomeKind, value bool, detail string) OutcomeRecord {
	return OutcomeRecord{subject: subject, fault: fault, kind: kind, value: value, detail: detail}
}

// SkippedOutcome records a check which could not run under an expected degraded state
func SkippedOutcome(subject string, fault FaultKind, kind OutcomeKind, detail string) OutcomeRecord {
	return OutcomeRecord{subject: subject, fault: fault, kind: kind, skipped: true, detail: detail}
}

// InZone returns a copy of the record attributed to the zone
func (o OutcomeRecord) InZone(zone string) OutcomeRecord {
	o.zone = zone
	return o
}

func (o OutcomeRecord) Subject() string { return o.subject }
func (o OutcomeRecord) Zone() string { return o.zone }
func (o OutcomeRecord) Fault() FaultKind { return o.fault }
func (o OutcomeRecord) Kind() OutcomeKind { return o.kind }
func (o OutcomeRecord) Value() bool { return o.value }
func (o OutcomeRecord) Skipped() bool { return o.skipped }
func (o OutcomeRecord) Detail() string { return o.detail }

func (o OutcomeRecord) String() string {
	state := fmt.Sprintf("%v", o.value)
	if o.skipped {
		state = "skipped"
	}
	subject := o.subject
	if o.zone != "" {
		subject = fmt.Sprintf("%s[%s]", o.subject, o.zone)
	}
	if o.detail == "" {
		return fmt.Sprintf("%s %s: %s", subject, o.kind, state)
	}
	return fmt.Sprintf("%s %s: %s (%s)", subject, o.kind, state, o.detail)
}
