package template

import (
	"math/rand"
	"strings"
)

// Character alphabets for the random value generators.
const (
	numericChars      = "0123456789"
	alphaChars        = "abcdefghijklmnopqrstuvwxyz"
	alphanumericChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	hexChars          = "0123456789abcdef"
	base64Chars       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
)

var monthNames = []string{
	"January",
	"February",
	"March",
	"April",
	"May",
	"June",
	"July",
	"August",
	"September",
	"October",
	"November",
	"December",
}

// randomString returns length characters drawn uniformly from alphabet.
func randomString(rnd *rand.Rand, alphabet string, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rnd.Intn(len(alphabet))])
	}
	return b.String()
}

// randomBetween returns a uniform integer in [min, max], inclusive on both
// bounds.
func randomBetween(rnd *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rnd.Intn(max-min+1)
}

// randomTelephone returns a synthetic North-American-shaped telephone
// string: three digit groups of 3, 3 and 4 digits.
func randomTelephone(rnd *rand.Rand) string {
	digits := randomString(rnd, numericChars, 10)
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
}

// base64Pad appends the '=' padding that brings a generated base64-alphabet
// string of the given length to a multiple of four.
func base64Pad(length int) string {
	switch length % 4 {
	case 1:
		return "==="
	case 2:
		return "=="
	case 3:
		return "="
	}
	return ""
}
