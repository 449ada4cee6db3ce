package remote

import "testing"

func TestSchemaKeysDescriptionOrderless(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"name": "string",
			"age":  "number",
		},
	}
	desc := schemaKeysDescription(schema)
	if desc == "" {
		t.Fatal("expected non-empty description")
	}
	for _, want := range []string{"name", "age"} {
		if !contains(desc, want) {
			t.Errorf("description %q missing key %q", desc, want)
		}
	}
}

func TestSchemaKeysDescriptionMissingProperties(t *testing.T) {
	if got := schemaKeysDescription(map[string]any{}); got != "" {
		t.Fatalf("expected empty description, got %q", got)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
