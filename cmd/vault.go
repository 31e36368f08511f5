package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/vault"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect the patient vault",
}

// -- vault list --

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patients in the vault",
	RunE: func(cmd *cobra.Command, _ []string) error {
		vs, err := openVault()
		if err != nil {
			return err
		}

		records := vs.Records()
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "Vault is empty.")
			return nil
		}
		formatPatients(os.Stdout, records)
		return nil
	},
}

// -- vault show --

var vaultShowCmd = &cobra.Command{
	Use:   "show <patient-id>",
	Short: "Show one patient record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vs, err := openVault()
		if err != nil {
			return err
		}

		rec, ok := vs.Get(args[0])
		if !ok {
			return eris.Errorf("patient %q not found", args[0])
		}

		format, _ := cmd.Flags().GetString("format")
		return writeRecord(os.Stdout, rec, format)
	},
}

func openVault() (*vault.Store, error) {
	if err := cfg.Validate("inspect"); err != nil {
		return nil, err
	}
	vs, err := vault.Open(cfg.Vault.BaseDir)
	if err != nil {
		return nil, eris.Wrap(err, "open vault")
	}
	return vs, nil
}

// formatPatients writes one row per patient to out.
func formatPatients(out io.Writer, records []*model.VaultRecord) {
	title := cases.Title(language.Und)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tREPORTS\tVARIATIONS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t----------\t-------")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.Identity.ID,
			title.String(strings.ToLower(r.Identity.CanonicalName)),
			r.ReportCount,
			len(r.Identity.NameVariations),
			r.Identity.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// writeRecord renders rec as json or yaml.
func writeRecord(out io.Writer, rec *model.VaultRecord, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(rec), "encode record")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "encode record")
		}
		return eris.Wrap(enc.Close(), "encode record")
	default:
		return eris.Errorf("unsupported format %q (want json or yaml)", format)
	}
}

func init() {
	vaultShowCmd.Flags().String("format", "json", "output format: json or yaml")

	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultShowCmd)
	rootCmd.AddCommand(vaultCmd)
}
