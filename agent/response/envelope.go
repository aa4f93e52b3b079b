// Package response defines the envelope returned by the chat endpoint and the
// typed display payloads a frontend renders from it.
package response

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope is the top-level reply of POST /chat. It is built fresh per
// request and never mutated after it is returned.
type Envelope struct {
	Answer        string         `json:"answer"`
	Logs          []string       `json:"logs"`
	Status        Status         `json:"status"`
	Error         string         `json:"error,omitempty"`
	FormattedData *FormattedData `json:"formatted_data,omitempty"`
}

// Success returns a structured reply. A nil data yields the text-only shape.
func Success(answer string, logs []string, data *FormattedData) Envelope {
	return Envelope{
		Answer:        strings.TrimSpace(answer),
		Logs:          copyLogs(logs),
		Status:        StatusSuccess,
		FormattedData: data,
	}
}

func Text(answer string, logs []string) Envelope {
	return Success(answer, logs, nil)
}

// Failure never carries formatted data. An empty errMsg is replaced so the
// error field is always present.
func Failure(answer string, errMsg string, logs []string) Envelope {
	errMsg = strings.TrimSpace(errMsg)
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return Envelope{
		Answer: strings.TrimSpace(answer),
		Logs:   copyLogs(logs),
		Status: StatusError,
		Error:  errMsg,
	}
}

// WithAnswer returns a copy of e with the answer replaced when answer is not blank.
func (e Envelope) WithAnswer(answer string) Envelope {
	if trimmed := strings.TrimSpace(answer); trimmed != "" {
		e.Answer = trimmed
	}
	return e
}

// WithLogs returns a copy of e carrying logs.
func (e Envelope) WithLogs(logs []string) Envelope {
	e.Logs = copyLogs(logs)
	return e
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	out := plain(e)
	if out.Logs == nil {
		out.Logs = []string{}
	}
	return json.Marshal(out)
}

func copyLogs(logs []string) []string {
	out := make([]string, 0, len(logs))
	return append(out, logs...)
}
