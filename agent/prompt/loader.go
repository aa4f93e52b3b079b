package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

//go:embed template/analyst.txt
var analystRaw string

const dateLayout = "2006-01-02"

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Analyst string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Analyst: strings.TrimSpace(analystRaw),
	}
}

// AnalystVariables fills the analyst template. A session id that looks like
// an email scopes every inventory and sales query to that user.
func AnalystVariables(sessionID string, now time.Time) map[string]any {
	return map[string]any{
		"current_date": now.Format(dateLayout),
		"user_scope":   UserScope(sessionID),
	}
}

func UserScope(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if !strings.Contains(sessionID, "@") {
		return ""
	}
	return fmt.Sprintf(
		" The user's email is '%s'. Every inventory and sales query MUST be filtered with userEmail: '%s'.",
		sessionID, sessionID,
	)
}
