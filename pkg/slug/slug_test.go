package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := map[string]string{
		"Kadın Giyim":      "kadin-giyim",
		"Çocuk Ürünleri":   "cocuk-urunleri",
		"  Hello   World!": "hello-world",
		"İstanbul":         "istanbul",
		"---":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Generate(in), "Generate(%q)", in)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ekran_boyutu", Key("Ekran Boyutu"))
	assert.Equal(t, "ram_gb", Key("RAM (GB)"))
	assert.Equal(t, "color", Key("color"))
}
