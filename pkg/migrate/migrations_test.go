package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/handoffdesk-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestRoutingMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_routing")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS queue_items",
		"ON queue_items (queue_id, conversation_id) WHERE state IN ('queued', 'hot')",
		"ON queues (is_default) WHERE is_default",
		"WHERE released_at IS NULL AND status IN ('assigned', 'human_working')",
		"CONSTRAINT ux_handoffs_conversation_reason UNIQUE (conversation_id, reason_code)",
		"DROP TABLE IF EXISTS assignments",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestConversationMigrationRestrictsStatus(t *testing.T) {
	content := readMigration(t, "create_conversations")
	for _, status := range []string{"'new'", "'agent_working'", "'needs_human'", "'back_to_agent'", "'archived'"} {
		if !strings.Contains(content, status) {
			t.Errorf("status check missing %s", status)
		}
	}
	if !strings.Contains(content, "CHECK (confidence IS NULL OR sender_type = 'agent')") {
		t.Errorf("messages must restrict confidence to agent rows")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestCreateSQLMigrationSlugsName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add SLA timers!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_sla_timers.sql") {
		t.Fatalf("unexpected migration path %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected unusable name to fail")
	}
}

func TestValidateDirRejectsMissingDown(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_only_up.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected missing down marker to fail validation")
	}
}
