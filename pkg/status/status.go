package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a generation task.
type Status int

const (
	Unknown Status = iota
	Pending
	Generating
	TextSuccess
	Success
	Failed
	Downloaded
)

var statusNames = [...]string{
	Unknown:     "UNKNOWN",
	Pending:     "PENDING",
	Generating:  "GENERATING",
	TextSuccess: "TEXT_SUCCESS",
	Success:     "SUCCESS",
	Failed:      "FAILED",
	Downloaded:  "DOWNLOADED",
}

// Remote failure variants the API reports besides plain FAILED.
var failureAliases = map[string]bool{
	"CREATE_TASK_FAILED":    true,
	"GENERATE_AUDIO_FAILED": true,
	"CALLBACK_EXCEPTION":    true,
	"SENSITIVE_WORD_ERROR":  true,
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus maps a wire value to a Status. Unrecognised values yield Unknown.
func ParseStatus(s string) Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range statusNames {
		if name == s {
			return Status(i)
		}
	}
	if failureAliases[s] {
		return Failed
	}
	return Unknown
}

// IsTerminal reports whether no further polling is needed.
func (s Status) IsTerminal() bool {
	switch s {
	case Failed, Downloaded:
		return true
	case Unknown, Pending, Generating, TextSuccess, Success:
		return false
	}
	return false
}

// IsInFlight reports whether the remote side is still working on the task.
func (s Status) IsInFlight() bool {
	switch s {
	case Pending, Generating, TextSuccess:
		return true
	case Unknown, Success, Failed, Downloaded:
		return false
	}
	return false
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	*s = ParseStatus(raw)
	return nil
}
