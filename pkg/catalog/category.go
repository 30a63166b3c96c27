// Package catalog holds the canonical product taxonomy shared by every source.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// unificationMap is the source of truth for category normalization.
// It groups raw, source-specific category strings under a canonical name.
var unificationMap = map[string][]string{
	"GPU":         {"gpu", "graphics card", "graphics cards", "tarjeta grafica", "tarjetas graficas", "tarjetas de video", "vga"},
	"CPU":         {"cpu", "processor", "processors", "procesador", "procesadores"},
	"Motherboard": {"motherboard", "motherboards", "placa base", "placas base", "mainboard"},
	"PSU":         {"psu", "power supply", "fuente de alimentacion", "fuentes de alimentacion", "fuentes"},
	"Storage":     {"storage", "ssd", "hdd", "almacenamiento", "discos duros", "disco ssd"},
	"RAM":         {"ram", "memory", "memoria", "memoria ram", "memorias ram"},
	"CPU Cooler":  {"cpu cooler", "disipadores", "disipadores cpu", "refrigeracion", "refrigeracion liquida", "cooler"},
	"Chassis":     {"chassis", "case", "cajas", "torres", "caja", "semitorre", "gran torre", "minitorre"},
}

// categoryMap is a reverse map generated from unificationMap for efficient lookups.
var categoryMap map[string]string

func init() {
	categoryMap = make(map[string]string)
	for unified, raws := range unificationMap {
		categoryMap[fold(unified)] = unified
		for _, raw := range raws {
			categoryMap[raw] = unified
		}
	}
}

// ResolveCategory maps a raw category string to its canonical name.
func ResolveCategory(raw string) (string, bool) {
	unified, ok := categoryMap[fold(raw)]
	return unified, ok
}

// Categories lists every canonical category.
func Categories() []string {
	out := make([]string, 0, len(unificationMap))
	for unified := range unificationMap {
		out = append(out, unified)
	}
	return out
}

// fold lowercases, strips accents and collapses whitespace.
func fold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(strings.TrimSpace(s))) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
