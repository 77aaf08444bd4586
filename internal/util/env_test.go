package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		expected     bool
	}{
		{"true literal", "true", false, true},
		{"numeric one", "1", false, true},
		{"yes", "yes", false, true},
		{"on", "on", false, true},
		{"mixed case", "TRUE", false, true},
		{"false literal", "false", true, false},
		{"numeric zero", "0", true, false},
		{"no", "no", true, false},
		{"off", "off", true, false},
		{"whitespace trimmed", "  true  ", false, true},
		{"unset uses default true", "", true, true},
		{"unset uses default false", "", false, false},
		{"invalid uses default", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "LEADLINE_TEST_BOOL"
			t.Setenv(key, tt.value)
			got := ParseBoolEnv(key, tt.defaultValue)
			if got != tt.expected {
				t.Errorf("ParseBoolEnv(%q, %v) with value %q = %v, want %v", key, tt.defaultValue, tt.value, got, tt.expected)
			}
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	key := "LEADLINE_TEST_STRING"

	t.Setenv(key, "")
	if got := GetEnvOrDefault(key, "/var/lib/leadline"); got != "/var/lib/leadline" {
		t.Errorf("expected default for empty value, got %q", got)
	}

	t.Setenv(key, "/tmp/state")
	if got := GetEnvOrDefault(key, "/var/lib/leadline"); got != "/tmp/state" {
		t.Errorf("expected env value to win, got %q", got)
	}
}
