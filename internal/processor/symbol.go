package processor

import "strings"

// mcxSymbolMap folds MCX mini contracts onto the underlying the scrip master
// actually lists options for.
var mcxSymbolMap = map[string]string{
	"CRUDEOILM": "CRUDEOIL",
	"GOLDM":     "GOLD",
	"SILVERM":   "SILVER",
	"COPPERM":   "COPPER",
}

// NormalizeSymbol converts a TradingView chart symbol into the underlying
// used by the instrument catalog: uppercased, continuation suffixes (1!, 2!,
// 3!) stripped, exchange prefix dropped, MCX mini contracts remapped.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return s
	}
	for _, suf := range []string{"1!", "2!", "3!"} {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if mapped, ok := mcxSymbolMap[s]; ok {
		return mapped
	}
	return s
}
