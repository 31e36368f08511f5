package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/labvault/internal/ocr"
	"github.com/sells-group/labvault/internal/pipeline"
	"github.com/sells-group/labvault/internal/source"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract a lab report without touching the vault",
	Long:  "Decodes one document and prints the merged lab report as JSON. The vault and run ledger are not opened.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}
		pdf, err := ocr.NewExtractor(cfg.OCR, cfg.Mistral.Key)
		if err != nil {
			return eris.Wrap(err, "init ocr")
		}

		doc, err := source.NewLoader(pdf).Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeReport(os.Stdout, pipeline.New(nil, nil), doc)
	},
}

func writeReport(out io.Writer, p *pipeline.Pipeline, doc *source.Document) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Extract(doc)); err != nil {
		return eris.Wrap(err, "encode report")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
