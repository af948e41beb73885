package persistence

import (
	"testing"

	"VaultLedger/migrations"
)

func TestPlaceholders(t *testing.T) {
	if got := placeholders(0, 2); got != "($1, $2)" {
		t.Errorf("placeholders(0, 2): got %q", got)
	}
	if got := placeholders(10, 3); got != "($11, $12, $13)" {
		t.Errorf("placeholders(10, 3): got %q", got)
	}
}

func TestExtractVersion(t *testing.T) {
	if got := extractVersion("000002_projections.up.sql"); got != "000002" {
		t.Errorf("extractVersion: got %q, want 000002", got)
	}
}

func TestListMigrations_EmbeddedOrder(t *testing.T) {
	files, err := ListMigrations(migrations.FS, ".up.sql")
	if err != nil {
		t.Fatalf("ListMigrations: %v", err)
	}
	want := []string{"000001_vault_log.up.sql", "000002_projections.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("ListMigrations: got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("ListMigrations[%d]: got %q, want %q", i, files[i], want[i])
		}
	}

	downs, err := ListMigrations(migrations.FS, ".down.sql")
	if err != nil {
		t.Fatalf("ListMigrations down: %v", err)
	}
	if len(downs) != len(files) {
		t.Errorf("every up migration needs a down: %d up, %d down", len(files), len(downs))
	}
}
