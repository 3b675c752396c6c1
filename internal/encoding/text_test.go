package encoding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/almsbox/internal/encoding"
)

func TestNormalizeText_Composes(t *testing.T) {
	// "ç" and "ã" written as base letter plus combining mark.
	decomposed := "Doac\u0327a\u0303o"
	assert.Equal(t, "Doa\u00e7\u00e3o", encoding.NormalizeText(decomposed))
}

func TestNormalizeText_StripsControlAndTrims(t *testing.T) {
	assert.Equal(t, "bank ref\n123", encoding.NormalizeText("  bank\x00 ref\n123\x07  "))
}

func TestNormalizeText_InvalidUTF8(t *testing.T) {
	assert.Equal(t, "ok�", encoding.NormalizeText("ok\xff"))
}
