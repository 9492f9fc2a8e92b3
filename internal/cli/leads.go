package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newLeadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Manage leads and scripts in the local store",
	}

	cmd.AddCommand(newLeadsImportCmd())
	cmd.AddCommand(newLeadsListCmd())
	cmd.AddCommand(newScriptsListCmd())
	return cmd
}

// leadFile is the import format. A bare list is read as leads.
type leadFile struct {
	Leads   []domain.Lead   `json:"leads"`
	Scripts []domain.Script `json:"scripts"`
}

// parseLeadFile accepts YAML or JSON. Documents are decoded generically and
// re-encoded as JSON so field names follow the wire format.
func parseLeadFile(data []byte) (leadFile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return leadFile{}, fmt.Errorf("decoding lead file: %w", err)
	}
	if doc == nil {
		return leadFile{}, nil
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return leadFile{}, fmt.Errorf("decoding lead file: %w", err)
	}

	var f leadFile
	if _, ok := doc.([]any); ok {
		err = json.Unmarshal(buf, &f.Leads)
	} else {
		err = json.Unmarshal(buf, &f)
	}
	if err != nil {
		return leadFile{}, fmt.Errorf("decoding lead file: %w", err)
	}
	return f, nil
}

// importLeads writes every lead and script in f, stopping at the first
// invalid record.
func importLeads(ctx context.Context, st store.Store, f leadFile) error {
	for _, l := range f.Leads {
		if err := st.PutLead(ctx, l); err != nil {
			return fmt.Errorf("lead %q: %w", l.ID, err)
		}
	}
	for _, s := range f.Scripts {
		if err := st.PutScript(ctx, s); err != nil {
			return fmt.Errorf("script %q: %w", s.ID, err)
		}
	}
	return nil
}

func openStore() (store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Store, paths.DB, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func newLeadsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import leads and scripts from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			f, err := parseLeadFile(data)
			if err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := importLeads(cmd.Context(), st, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d lead(s), %d script(s)\n", len(f.Leads), len(f.Scripts))
			return nil
		},
	}
}

func newLeadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			leads, err := st.ListLeads(cmd.Context())
			if err != nil {
				return err
			}
			if len(leads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No leads.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPHONE\tCOMPANY")
			for _, l := range leads {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.Phone, l.Company)
			}
			return tw.Flush()
		},
	}
}

func newScriptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "List stored scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			scripts, err := st.ListScripts(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range scripts {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %s\n", s.ID, s.Name)
			}
			return nil
		},
	}
}
