package purchase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/creastat/receipts"
)

// Replies sent to the customer. The chat channel is Brazilian Portuguese.
const (
	msgDocumentUnavailable = "Não consegui abrir o comprovante enviado. Pode enviar novamente?"
	msgValueNotRead        = "Não consegui identificar o valor no comprovante. Pode enviar uma imagem mais nítida ou o PDF?"
	msgFinalizedEmpty      = "Compra finalizada sem comprovantes registrados."
	msgReportPending       = "Compra finalizada! Total: R$ %s. Estamos confirmando o registro do pagamento."
)

func msgAccepted(value, total decimal.Decimal) string {
	return fmt.Sprintf("Comprovante recebido! Valor: R$ %s. Total da compra: R$ %s.",
		receipts.FormatBRL(value), receipts.FormatBRL(total))
}

func msgFinalized(total decimal.Decimal) string {
	return fmt.Sprintf("Compra finalizada! Total: R$ %s. Obrigado!", receipts.FormatBRL(total))
}
