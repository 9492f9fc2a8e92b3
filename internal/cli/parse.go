package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/transcript"
	"github.com/spf13/cobra"
)

func newParseCmd() *cobra.Command {
	var text bool

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Parse a call transcript into role-tagged messages",
		Long: "Reads a transcript from a file, or stdin when the argument is \"-\" or\n" +
			"omitted, and prints the parsed messages.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading transcript: %w", err)
			}

			return writeMessages(cmd.OutOrStdout(), transcript.Parse(string(raw)), text)
		},
	}

	cmd.Flags().BoolVar(&text, "text", false, "print one \"role: content\" line per message")
	return cmd
}

func writeMessages(out io.Writer, msgs []domain.TranscriptMessage, text bool) error {
	if !text {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	}
	for _, m := range msgs {
		if _, err := fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content); err != nil {
			return err
		}
	}
	return nil
}
