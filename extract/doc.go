// Package extract turns OCR or PDF text into the two facts the ledger needs:
// the paid amount and the transaction reference.
//
// Every heuristic is a pure function over normalized text so that each tier
// can be exercised against literal fixtures without any OCR involved.
package extract
