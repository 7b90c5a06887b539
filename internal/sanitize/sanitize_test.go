package sanitize

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"empty", "", ""},
		{"plain", "Jane Doe", "Jane Doe"},
		{"script removed", `Jane<script>alert(1)</script>`, "Jane"},
		{"tags stripped", `<b>Jane</b> <i>Doe</i>`, "Jane Doe"},
		{"entities decoded", "Tom & Jerry", "Tom & Jerry"},
		{"attribute payload", `<img src=x onerror=alert(1)>Jane`, "Jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.expect {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("  Jane \n\t Doe  ", 100); got != "Jane Doe" {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
	if got := DisplayName("Zoë Ångström", 3); got != "Zoë" {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
	if got := DisplayName("<p></p>", 100); got != "" {
		t.Errorf("expected empty after stripping, got %q", got)
	}
}
