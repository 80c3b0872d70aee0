package extract

import "regexp"

// MinTxidLength is the shortest token accepted as a transaction reference.
const MinTxidLength = 10

var txidPattern = regexp.MustCompile(`(?i)\b(?:endtoendid|e2e\s?id|txid|e2e)\b\s*[:#\-]?\s*([A-Za-z0-9.\-]{9,}[A-Za-z0-9])`)

// ExtractTxid returns the first transaction or end-to-end identifier found
// after a txid/E2E label, or "" when there is none. The identifier never ends
// in a dot or hyphen.
func ExtractTxid(text string) string {
	m := txidPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
