package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/creastat/receipts/document"
	"github.com/creastat/receipts/extract"
)

type extractOutput struct {
	File       string                  `json:"file"`
	Document   document.Classification `json:"document"`
	Value      decimal.NullDecimal     `json:"value"`
	Confidence float64                 `json:"confidence"`
	Candidates []decimal.Decimal       `json:"candidates"`
	Txid       string                  `json:"txid,omitempty"`
	Text       string                  `json:"text,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Read value and transaction id from a local receipt",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	cmd.Flags().Bool("text", false, "Include the normalized text in the output")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	doc := document.Classify(data, mime.TypeByExtension(filepath.Ext(path)))
	out := extractOutput{File: path, Document: doc}

	raw, err := newTextSources(cfg, logger).ExtractText(cmd.Context(), data, doc.Kind)
	if err != nil {
		out.Error = err.Error()
	}

	text := extract.Normalize(raw)
	value := extract.ExtractValue(text)
	out.Value = value.Value
	out.Confidence = value.Confidence
	out.Candidates = value.Candidates
	out.Txid = extract.ExtractTxid(text)
	if withText, _ := cmd.Flags().GetBool("text"); withText {
		out.Text = text
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
