package cerrors

import (
	"encoding/json"
	"fmt"
)

// Error is the typed error raised by every component of the harness.
// Error() renders it as a compact json object so it survives log scraping.
type Error struct {
	ErrorCode ErrorType `json:"errorCode,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Target    string    `json:"target,omitempty"`
}

func (e Error) Error() string {
	out, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("{\"errorCode\":\"%s\",\"reason\":\"%s\"}", e.ErrorCode, e.Reason)
	}
	return string(out)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type Generic struct {
	Phase  string
	Reason string
}

func (e Generic) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Generic) UserFriendly() bool {
	return true
}

func (e Generic) ErrorType() ErrorType {
	return ErrorTypeGeneric
}

// WorkloadStatusChecks is raised when logwriter or logreader instances are not in the expected shape
type WorkloadStatusChecks struct {
	Target string
	Reason string
}

func (e WorkloadStatusChecks) Error() string {
	return fmt.Sprintf("workload '%s' status check failed, %s", e.Target, e.Reason)
}

func (e WorkloadStatusChecks) UserFriendly() bool {
	return true
}

func (e WorkloadStatusChecks) ErrorType() ErrorType {
	return ErrorTypeUnexpectedBehaviour
}

type TargetPodSelection struct {
	Target string
	Reason string
}

func (e TargetPodSelection) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("target selection failed, %s", e.Reason)
	}
	return fmt.Sprintf("target '%s' selection failed, %s", e.Target, e.Reason)
}

func (e TargetPodSelection) UserFriendly() bool {
	return true
}

func (e TargetPodSelection) ErrorType() ErrorType {
	return ErrorTypeTargetSelection
}
