package hcert

// base45.go implements RFC 9285 base45 encoding, the text encoding used for
// the QR alphanumeric-mode credential string.
//
// Pairs of bytes are treated as a base-256 number and written as three base-45
// digits (least significant first); a single trailing byte becomes two digits.

import (
	"fmt"
)

const base45Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

var base45Reverse [256]int16

func init() {
	for i := range base45Reverse {
		base45Reverse[i] = -1
	}
	for i, c := range base45Alphabet {
		base45Reverse[c] = int16(i)
	}
}

// Base45Encode encodes arbitrary bytes into the base45 alphabet.
func Base45Encode(data []byte) string {
	out := make([]byte, 0, (len(data)/2)*3+3)

	for i := 0; i+1 < len(data); i += 2 {
		n := int(data[i])<<8 | int(data[i+1])
		out = append(out,
			base45Alphabet[n%45],
			base45Alphabet[(n/45)%45],
			base45Alphabet[n/(45*45)],
		)
	}

	if len(data)%2 == 1 {
		n := int(data[len(data)-1])
		out = append(out,
			base45Alphabet[n%45],
			base45Alphabet[n/45],
		)
	}

	return string(out)
}

// Base45Decode decodes a base45 string. It fails on invalid characters,
// impossible lengths (len % 3 == 1) and digit groups that overflow the
// two-byte range.
func Base45Decode(s string) ([]byte, error) {
	if len(s)%3 == 1 {
		return nil, fmt.Errorf("invalid base45 length %d", len(s))
	}

	vals := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		v := base45Reverse[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("invalid base45 character %q at position %d", s[i], i)
		}
		vals[i] = int(v)
	}

	out := make([]byte, 0, (len(s)/3)*2+1)

	for i := 0; i+2 < len(vals); i += 3 {
		n := vals[i] + vals[i+1]*45 + vals[i+2]*45*45
		if n > 0xFFFF {
			return nil, fmt.Errorf("base45 group overflow at position %d", i)
		}
		out = append(out, byte(n>>8), byte(n&0xFF))
	}

	if len(vals)%3 == 2 {
		n := vals[len(vals)-2] + vals[len(vals)-1]*45
		if n > 0xFF {
			return nil, fmt.Errorf("base45 trailing group overflow")
		}
		out = append(out, byte(n))
	}

	return out, nil
}
