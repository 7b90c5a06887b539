package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Aa1!aaaa", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "Aa1!aaaa" {
		t.Fatal("hash should not equal the raw password")
	}
	if !VerifyPassword("Aa1!aaaa", hash) {
		t.Error("expected password to verify")
	}
	if VerifyPassword("Aa1!aaab", hash) {
		t.Error("expected wrong password to fail")
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	if VerifyPassword("anything", "not-a-bcrypt-hash") {
		t.Error("malformed hash must never verify")
	}
	if VerifyPassword("", "") {
		t.Error("empty hash must never verify")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, _ := HashPassword("Aa1!aaaa", bcrypt.MinCost)
	b, _ := HashPassword("Aa1!aaaa", bcrypt.MinCost)
	if a == b {
		t.Error("expected different salts to produce different hashes")
	}
}

func TestPasswordProblems(t *testing.T) {
	tests := []struct {
		password string
		problems int
	}{
		{"Aa1!aaaa", 0},
		{"Aa1!", 1},
		{"aa1!aaaa", 1},
		{"AA1!AAAA", 1},
		{"Aaa!aaaa", 1},
		{"Aa1aaaaa", 1},
		{"password", 3},
		{"", 5},
		{"Aa1!" + strings.Repeat("a", 69), 1},
		// Only ASCII letters and digits count toward the character rules.
		{"Aa١!aaaa", 1},
		{"ÉÉÉÉaa1!", 1},
	}

	for _, tt := range tests {
		got := PasswordProblems(tt.password)
		if len(got) != tt.problems {
			t.Errorf("PasswordProblems(%q) = %v, want %d problems", tt.password, got, tt.problems)
		}
		if IsStrongPassword(tt.password) != (tt.problems == 0) {
			t.Errorf("IsStrongPassword(%q) disagrees with PasswordProblems", tt.password)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"jane@x.com", "a.b+c@sub.example.org"}
	invalid := []string{"", "jane", "jane@", "@x.com", "jane@x", "ja ne@x.com"}

	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("expected %q to be valid", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("expected %q to be invalid", e)
		}
	}
}

func TestGenerateNumericCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 40 {
		t.Errorf("codes look non-random: %d distinct of 50", len(seen))
	}
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := GenerateOpaqueToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateOpaqueToken()
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}

func TestHashOneTimeSecret(t *testing.T) {
	// SHA-256 of "123456".
	const want = "8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92"
	if got := HashOneTimeSecret("123456"); got != want {
		t.Errorf("HashOneTimeSecret = %s, want %s", got, want)
	}
	if !secretsEqual(want, HashOneTimeSecret("123456")) {
		t.Error("expected equal secrets to compare equal")
	}
	if secretsEqual(want, HashOneTimeSecret("123457")) {
		t.Error("expected different secrets to differ")
	}
}
