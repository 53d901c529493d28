package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tis24dev/stackrestore"
	"github.com/tis24dev/stackrestore/internal/credentials"
	"github.com/tis24dev/stackrestore/internal/orchestrator"
)

var (
	embeddedBlob     = stackrestore.EmbeddedCredentialBlob
	passphraseSource = credentials.DefaultSource
)

func newBootstrapCmd(global *globalOptions, streams Streams) *cobra.Command {
	var blobPath, target string
	cmd := &cobra.Command{
		Use:   "bootstrap-credentials",
		Short: "Decrypt the embedded credential file if it is not installed yet",
		Long: "Decrypts the age-encrypted credential blob to the configured target with mode 0600.\n" +
			"The passphrase is read from " + credentials.PassphraseEnv + " or prompted on /dev/tty.\n" +
			"An existing target is left untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(global, streams, false)
			if err != nil {
				return err
			}

			if target == "" {
				cfg, closeLog, err := loadConfig(global, logger, "bootstrap")
				if err != nil {
					return err
				}
				defer closeLog()
				target = cfg.CredentialTarget
			}

			blob := credentials.Blob{TargetPath: target}
			if blobPath != "" {
				data, err := os.ReadFile(blobPath)
				if err != nil {
					return orchestrator.NewRunError(orchestrator.CategoryCredential, "bootstrap",
						fmt.Errorf("read blob: %w", err))
				}
				blob.Payload = data
			} else if data, ok := embeddedBlob(); ok {
				blob.Payload = data
			}

			res, err := credentials.Bootstrap(cmd.Context(), blob, passphraseSource(), logger)
			if err != nil {
				if errors.Is(err, credentials.ErrNoBlob) {
					err = fmt.Errorf("%w (this build embeds none; pass --blob FILE)", err)
				}
				return orchestrator.NewRunError(orchestrator.CategoryCredential, "bootstrap", err)
			}
			if !res.Written {
				fmt.Fprintf(streams.Out, "%s already present; nothing to do\n", res.Target)
				return nil
			}
			fmt.Fprintf(streams.Out, "Credentials written to %s\n", res.Target)
			return nil
		},
	}
	cmd.Flags().StringVar(&blobPath, "blob", "", "Encrypted blob to use instead of the embedded one")
	cmd.Flags().StringVar(&target, "target", "", "Destination path (default CREDENTIAL_TARGET from the config)")
	return cmd
}
