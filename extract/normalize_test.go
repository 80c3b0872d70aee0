package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "only whitespace", input: " \t\n\r\n ", want: ""},
		{name: "collapses spaces", input: "Valor   pago:\t R$  10,00", want: "Valor pago: R$ 10,00"},
		{name: "drops blank lines", input: "linha 1\r\n\r\n\nlinha 2\n", want: "linha 1\nlinha 2"},
		{name: "non-breaking space", input: "Total:\u00a0R$\u00a01.234,56", want: "Total: R$ 1.234,56"},
		{name: "zero width characters", input: "R$\u200b 5,00\ufeff", want: "R$ 5,00"},
		{name: "split currency marker", input: "R $ 12,50", want: "R$ 12,50"},
		{name: "fullwidth digits", input: "Total: R$ １２,３４", want: "Total: R$ 12,34"},
		{name: "typographic dash", input: "Valor – R$ 3,00", want: "Valor - R$ 3,00"},
		{name: "control characters", input: "E2E:\x00 E123\x07", want: "E2E: E123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}
