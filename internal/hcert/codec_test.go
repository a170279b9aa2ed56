package hcert

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	inputs := [][]byte{
		[]byte(""),
		[]byte("{}"),
		[]byte(strings.Repeat(`{"resourceType":"Bundle"}`, 100)),
	}
	random := make([]byte, 2048)
	rng.Read(random)
	inputs = append(inputs, random)

	for i, input := range inputs {
		compressed, err := Compress(input)
		if err != nil {
			t.Fatalf("Compress failed for input %d: %v", i, err)
		}
		decompressed, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress failed for input %d: %v", i, err)
		}
		if !bytes.Equal(decompressed, input) {
			t.Errorf("round trip mismatch for input %d", i)
		}
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := Decompress([]byte("not a zlib stream")); err == nil {
		t.Error("Decompress accepted garbage input")
	}
}

func TestStripContextPrefix(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "HC1:NCF0", "NCF0", false},
		{"missing prefix", "NCF0", "", true},
		{"wrong prefix", "LT1:NCF0", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StripContextPrefix(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StripContextPrefix(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("StripContextPrefix(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
