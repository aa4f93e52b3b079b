package prompt

import (
	"strings"
	"testing"
	"time"
)

func TestLoadPromptSetHasOnlyKnownPlaceholders(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if set.Analyst == "" {
		t.Fatal("analyst prompt is empty")
	}

	rest := set.Analyst
	for _, ph := range []string{"{current_date}", "{user_scope}"} {
		if !strings.Contains(rest, ph) {
			t.Fatalf("prompt missing %s", ph)
		}
		rest = strings.ReplaceAll(rest, ph, "")
	}
	if strings.ContainsAny(rest, "{}") {
		t.Fatal("prompt has stray braces that would break template rendering")
	}
}

func TestAnalystVariables(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)

	vars := AnalystVariables("default", now)
	if vars["current_date"] != "2025-06-30" {
		t.Fatalf("current_date = %v", vars["current_date"])
	}
	if vars["user_scope"] != "" {
		t.Fatalf("user_scope = %q, want empty", vars["user_scope"])
	}

	vars = AnalystVariables("owner@shop.test", now)
	scope, _ := vars["user_scope"].(string)
	if !strings.Contains(scope, "userEmail: 'owner@shop.test'") {
		t.Fatalf("user_scope = %q", scope)
	}
}
