package database

import (
	"strings"
	"testing"
)

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range strings.Split(Schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") && !strings.Contains(stmt, "CREATE") {
			continue
		}
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("statement is not idempotent:\n%s", stmt)
		}
	}
}

func TestSchemaConstraints(t *testing.T) {
	s := Schema()
	for _, want := range []string{
		"payment_request_id BIGINT      NOT NULL UNIQUE",
		"CHECK (platform_fee + worker_amount = amount)",
		"CHECK (status IN ('pending', 'approved', 'declined'))",
		"CREATE TABLE IF NOT EXISTS payout_events",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("schema is missing %q", want)
		}
	}
	if strings.Contains(s, "CREATE TABLE IF NOT EXISTS service_requests") {
		t.Error("schema must not create the job-management table")
	}
}
