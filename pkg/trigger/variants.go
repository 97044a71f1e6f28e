package trigger

// DefaultVariants returns the built-in phonetic variant table.
//
// The lists come from observed recognizer output for the stock trigger
// words: short words with long vowels get misheard along predictable
// lines. Deployments add their own triggers via [WithVariants] or the
// trigger_variants configuration block.
func DefaultVariants() map[string][]string {
	return map[string][]string{
		"koe": {"koi", "coe", "co", "kou", "kway", "cove"},
		"kon": {"con", "khan", "kahn", "cone", "conn"},
		"rec": {"wreck", "wrek", "reck", "rech"},
		"note": {"notes", "noted", "nope"},
	}
}
