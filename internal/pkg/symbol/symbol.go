package symbol

import (
	"strings"
)

// quoteCurrencies is checked in order, so longer quotes sharing a suffix come first.
var quoteCurrencies = []string{"FDUSD", "USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// Symbol is a base/quote pair. The internal form is "BASE/QUOTE".
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Valid() bool { return s.Base != "" && s.Quote != "" }

// Join renders the pair with sep between base and quote, or "" for an invalid pair.
func (s Symbol) Join(sep string) string {
	if !s.Valid() {
		return ""
	}
	return s.Base + sep + s.Quote
}

func (s Symbol) Internal() string { return s.Join("/") }

// Exchange is the slash-free form used by Binance REST endpoints.
func (s Symbol) Exchange() string { return s.Join("") }

// Parse accepts "BTC/USDT", "BTC/USDT:USDT", "BTC_USDT", "BTC-USDT" and "btcusdt".
func Parse(raw string) Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s, _, _ = strings.Cut(s, ":")
	if s == "" {
		return Symbol{}
	}
	for _, sep := range []string{"/", "_", "-"} {
		if base, quote, ok := strings.Cut(s, sep); ok {
			return Symbol{Base: strings.TrimSpace(base), Quote: strings.TrimSpace(quote)}
		}
	}
	for _, quote := range quoteCurrencies {
		if base, ok := strings.CutSuffix(s, quote); ok && base != "" {
			return Symbol{Base: base, Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize returns the internal form, or the upper-cased input when it has no known quote.
// Instruments outside the crypto quote list (e.g. "XYZ") keep their ticker as-is.
func Normalize(s string) string {
	if norm := Parse(s).Internal(); norm != "" {
		return norm
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// ToExchange converts any accepted spelling to the slash-free exchange form.
func ToExchange(s string) string {
	if ex := Parse(s).Exchange(); ex != "" {
		return ex
	}
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "/", "")
}

// NormalizeList normalizes and de-duplicates symbols, keeping first-seen order.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}
