package hcert

import (
	"bytes"
	"math/rand"
	"testing"
)

// test vectors from RFC 9285 section 4.3
func TestBase45Encode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"two bytes", "AB", "BB8"},
		{"hello", "Hello!!", "%69 VD92EX0"},
		{"base-45", "base-45", "UJCLQE7W581"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Base45Encode([]byte(tt.input))
			if got != tt.want {
				t.Errorf("Base45Encode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBase45Decode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"qed8wex0", "QED8WEX0", "ietf!", false},
		{"empty", "", "", false},
		{"bad length", "A", "", true},
		{"invalid character", "BB#", "", true},
		{"group overflow", ":::", "", true},
		{"trailing group overflow", "ZZZZZ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Base45Decode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Base45Decode(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Base45Decode(%q) unexpected error: %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("Base45Decode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBase45RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(45))

	for _, size := range []int{0, 1, 2, 3, 31, 32, 255, 1024, 4097} {
		data := make([]byte, size)
		rng.Read(data)

		decoded, err := Base45Decode(Base45Encode(data))
		if err != nil {
			t.Fatalf("round trip failed for size %d: %v", size, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip mismatch for size %d", size)
		}
	}
}
