package migrate

import "testing"

func TestMigrationsDirValidates(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
