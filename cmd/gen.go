package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/un5af3/kapibara/transport/tlsconf"
)

func newGenCommand() *cobra.Command {
	gen := &cobra.Command{
		Use:   "gen",
		Short: "generate auxiliary material: UUIDs, self-signed certificates",
	}
	gen.AddCommand(newGenUUIDCommand())
	gen.AddCommand(newGenCertCommand())
	return gen
}

func newGenUUIDCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uuid",
		Short: "print a freshly generated UUID (for vless user identifiers)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), uuid.NewString())
			return nil
		},
	}
}

func newGenCertCommand() *cobra.Command {
	var domainCSV string
	var certOut, keyOut string
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "generate a self-signed certificate for the given domains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			domains := splitCSV(domainCSV)
			if len(domains) == 0 {
				return fmt.Errorf("gen cert: --domain is required")
			}
			certPEM, keyPEM, err := tlsconf.GenerateSelfSigned(domains, 0)
			if err != nil {
				return err
			}
			if err := os.WriteFile(certOut, certPEM, 0o644); err != nil {
				return fmt.Errorf("gen cert: write cert: %w", err)
			}
			if err := os.WriteFile(keyOut, keyPEM, 0o600); err != nil {
				return fmt.Errorf("gen cert: write key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", certOut, keyOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&domainCSV, "domain", "", "comma-separated list of domains to cover")
	cmd.Flags().StringVar(&certOut, "cert-out", "cert.pem", "path to write the certificate")
	cmd.Flags().StringVar(&keyOut, "key-out", "key.pem", "path to write the private key")
	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
