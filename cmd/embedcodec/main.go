// Command embedcodec recovers embed-provider obfuscation transforms and
// replays them offline.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flyxtv/embedcodec"
	"github.com/flyxtv/embedcodec/artifact"
	"github.com/flyxtv/embedcodec/codec"
	"github.com/flyxtv/embedcodec/internal/logger"
	"github.com/flyxtv/embedcodec/internal/sanitize"
)

var (
	configPath   string
	artifactPath string
	outputPath   string
	resumePath   string
	structured   bool
)

var rootCmd = &cobra.Command{
	Use:   "embedcodec",
	Short: "Chosen-plaintext recovery of embed-provider obfuscation transforms",
	Long: `embedcodec probes a provider's encode oracle with planned plaintexts,
derives the ciphertext structure and per-position tables (or an XOR
keystream with a validated stability horizon), and writes a codec
artifact that replays the transform byte-exactly without the network.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := logger.FromEnvironment()
		if err != nil {
			return fmt.Errorf("logger configuration: %w", err)
		}
		logger.SetGlobalLogger(logger.New(cfg))
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Run the recovery pipeline against the configured oracle",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := embedcodec.LoadConfig(configPath)
		if err != nil {
			return err
		}
		rec, err := cfg.NewRecoverer()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var res *embedcodec.Result
		if resumePath != "" {
			prev, err := artifact.Load(resumePath)
			if err != nil {
				return err
			}
			res, err = rec.Resume(ctx, prev)
			if err != nil {
				return err
			}
		} else {
			res, err = rec.Recover(ctx)
			if err != nil {
				if res == nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "run aborted early: %v\n", err)
			}
		}

		out := outputPath
		if out == "" {
			out = cfg.Output
		}
		if out == "" {
			out = sanitize.ToSafeFilename(cfg.Provider, "")
		}
		if err := artifact.Save(res.Artifact, out); err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), res.Report.Summary())
		fmt.Fprintf(cmd.OutOrStdout(), "artifact written to %s\n", out)
		return nil
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode <plaintext>",
	Short: "Encode a plaintext with a recovered artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCodec()
		if err != nil {
			return err
		}
		cipher, err := c.Encode(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cipher)
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <ciphertext>",
	Short: "Decode a ciphertext with a recovered artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCodec()
		if err != nil {
			return err
		}
		var plain string
		if structured {
			plain, err = c.DecodeStructured(args[0])
		} else {
			plain, err = c.Decode(args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Describe a recovered artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := artifact.Load(artifactPath)
		if err != nil {
			return err
		}
		s, err := a.Structure()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider:  %s\n", a.Provider)
		fmt.Fprintf(out, "run:       %s (%s)\n", a.RunID, a.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintf(out, "mode:      %s\n", a.Mode)
		fmt.Fprintf(out, "header:    %d bytes\n", len(s.Header))
		fmt.Fprintf(out, "padding:   %d constant offsets\n", len(s.Padding))
		fmt.Fprintf(out, "mapping:   cutover=%d base=%d step=%d\n", s.Mapping.Cutover, s.Mapping.Base, s.Mapping.Step)
		if len(a.Positions) > 0 {
			fmt.Fprintf(out, "positions: %d tables\n", len(a.Positions))
		}
		if a.Keystream != "" {
			fmt.Fprintf(out, "keystream: %d bytes, stable below %d\n", len(a.Keystream)/2, a.StabilityHorizon)
		}
		return nil
	},
}

func loadCodec() (*codec.Codec, error) {
	a, err := artifact.Load(artifactPath)
	if err != nil {
		return nil, err
	}
	return codec.New(a)
}

func init() {
	recoverCmd.Flags().StringVarP(&configPath, "config", "c", "embedcodec.yaml", "recovery config file")
	recoverCmd.Flags().StringVarP(&outputPath, "output", "o", "", "artifact output path (defaults to config output or <provider>.json)")
	recoverCmd.Flags().StringVar(&resumePath, "resume", "", "previous artifact to resume from")

	for _, c := range []*cobra.Command{encodeCmd, decodeCmd, inspectCmd} {
		c.Flags().StringVarP(&artifactPath, "artifact", "a", "", "recovered artifact file")
		_ = c.MarkFlagRequired("artifact")
	}
	decodeCmd.Flags().BoolVar(&structured, "json", false, "trim output to its last complete JSON value")

	rootCmd.AddCommand(recoverCmd, encodeCmd, decodeCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "embedcodec: %v\n", err)
		os.Exit(1)
	}
}
