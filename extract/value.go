package extract

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/creastat/receipts"
)

// Confidence reported by each tier of ExtractValue.
const (
	LabeledConfidence  = 0.95
	CurrencyConfidence = 0.7
)

// amount matches Brazilian currency notation: dot-grouped thousands and a
// comma followed by exactly two decimals.
const amount = `(\d{1,3}(?:\.\d{3})+,\d{2}|\d+,\d{2})\b`

var (
	labeledAmount  = regexp.MustCompile(`(?i)\b(?:valor pago|valor|total|pagamento|pago)\b\s*[:\-]?\s*(?:R\$\s*)?` + amount)
	currencyAmount = regexp.MustCompile(`R\$\s*` + amount)
)

// ValueResult is the outcome of ExtractValue. Value is invalid when nothing
// matched.
type ValueResult struct {
	Value      decimal.NullDecimal `json:"value"`
	Confidence float64             `json:"confidence"`
	Candidates []decimal.Decimal   `json:"candidates"`
}

// Found reports whether a value was extracted.
func (r ValueResult) Found() bool {
	return r.Value.Valid
}

// valueTier is one step of the extraction cascade.
type valueTier func(text string) (ValueResult, bool)

// valueTiers are tried in order; the first tier that matches wins.
var valueTiers = []valueTier{
	labeledValue,
	largestCurrencyValue,
}

// ExtractValue finds the most likely paid amount in normalized text.
//
// An amount right after a label such as "Total" or "Valor pago" is trusted
// first. Without one, every "R$ <amount>" in the text is collected and the
// largest is reported.
func ExtractValue(text string) ValueResult {
	for _, tier := range valueTiers {
		if res, ok := tier(text); ok {
			return res
		}
	}
	return ValueResult{Candidates: []decimal.Decimal{}}
}

func labeledValue(text string) (ValueResult, bool) {
	for _, m := range labeledAmount.FindAllStringSubmatch(text, -1) {
		v, ok := receipts.ParseBRL(m[1])
		if !ok {
			continue
		}
		return ValueResult{
			Value:      decimal.NewNullDecimal(v),
			Confidence: LabeledConfidence,
			Candidates: []decimal.Decimal{v},
		}, true
	}
	return ValueResult{}, false
}

func largestCurrencyValue(text string) (ValueResult, bool) {
	var candidates []decimal.Decimal
	for _, m := range currencyAmount.FindAllStringSubmatch(text, -1) {
		if v, ok := receipts.ParseBRL(m[1]); ok {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return ValueResult{}, false
	}

	return ValueResult{
		Value:      decimal.NewNullDecimal(decimal.Max(candidates[0], candidates[1:]...)),
		Confidence: CurrencyConfidence,
		Candidates: candidates,
	}, true
}
