package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moov-io/webpay"
)

const (
	flagConfig      = "config"
	flagKey         = "key"
	flagCert        = "cert"
	flagTrustedCert = "trusted-cert"
	flagNoPatch     = "no-patch"
	flagSignature   = "signature-algorithm"
	flagDigest      = "digest-algorithm"
	flagVerbose     = "verbose"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webpayctl [sub-command]",
		Short: "Sign, verify and call Webpay SOAP services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP(flagConfig, "c", "webpay.yaml", "path to the merchant configuration")
	cmd.PersistentFlags().BoolP(flagVerbose, "v", false, "log requests and responses")

	cmd.AddCommand(newIdentityCmd())
	cmd.AddCommand(newSignCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newInitTransactionCmd())
	cmd.AddCommand(newResultCmd())
	cmd.AddCommand(newFeesCmd())
	return cmd
}

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print the issuer name and serial number a certificate signs with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "issuer: %s\nserial: %s\n", id.IssuerName, id.SerialNumber)
			return nil
		},
	}
	cmd.Flags().String(flagKey, "", "merchant private key (PEM)")
	cmd.Flags().String(flagCert, "", "merchant certificate (PEM)")
	return cmd
}

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [envelope.xml]",
		Short: "Add the WS-Security signature to a SOAP envelope",
		Long: `Reads an unsigned SOAP envelope from the file given, or from stdin, and
writes it signed with the merchant key. The envelope must have a soap:Header.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity(cmd)
			if err != nil {
				return err
			}
			sigName, _ := cmd.Flags().GetString(flagSignature)
			digestName, _ := cmd.Flags().GetString(flagDigest)
			sigAlg, err := webpay.ParseSignatureAlgorithm(sigName)
			if err != nil {
				return err
			}
			digestAlg, err := webpay.ParseDigestAlgorithm(digestName)
			if err != nil {
				return err
			}
			signer, err := webpay.NewSigner(id, webpay.WithSignatureAlgorithm(sigAlg), webpay.WithDigestAlgorithm(digestAlg))
			if err != nil {
				return err
			}

			envelope, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			signed, err := signer.Sign(envelope)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(signed)
			return err
		},
	}
	cmd.Flags().String(flagKey, "", "merchant private key (PEM)")
	cmd.Flags().String(flagCert, "", "merchant certificate (PEM)")
	cmd.Flags().String(flagSignature, "rsa-sha1", "signature method: rsa-sha1, rsa-sha256, rsa-sha384 or rsa-sha512")
	cmd.Flags().String(flagDigest, "sha1", "digest method: sha1, sha256, sha384 or sha512")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [response.xml]",
		Short: "Check the signature of a Webpay response against a pinned certificate",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString(flagTrustedCert)
			if path == "" {
				return errors.New("--trusted-cert is required")
			}
			pemBytes, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			key, err := webpay.ParseTrustedKey(pemBytes)
			if err != nil {
				return err
			}
			var opts []webpay.VerifierOption
			if noPatch, _ := cmd.Flags().GetBool(flagNoPatch); noPatch {
				opts = append(opts, webpay.WithSignedInfoPatch(webpay.NoPatch))
			}
			verifier, err := webpay.NewVerifier(key, opts...)
			if err != nil {
				return err
			}

			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if err := verifier.Verify(raw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
			return nil
		},
	}
	cmd.Flags().String(flagTrustedCert, "", "Webpay certificate or public key (PEM)")
	cmd.Flags().Bool(flagNoPatch, false, "verify over the standard canonical SignedInfo")
	return cmd
}

func newInitTransactionCmd() *cobra.Command {
	var req webpay.InitTransactionRequest
	var amount string

	cmd := &cobra.Command{
		Use:   "init-transaction",
		Short: "Start a Webpay Plus transaction and print its token and URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Amount, err = decimal.NewFromString(amount); err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.InitTransaction(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.BuyOrder, "buy-order", "", "merchant order identifier")
	cmd.Flags().StringVar(&req.SessionID, "session-id", "", "merchant session identifier")
	cmd.Flags().StringVar(&req.ReturnURL, "return-url", "", "URL receiving token_ws after authorization")
	cmd.Flags().StringVar(&req.FinalURL, "final-url", "", "URL receiving the cardholder after the voucher")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in pesos")
	cmd.MarkFlagRequired("buy-order")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newResultCmd() *cobra.Command {
	var ack bool

	cmd := &cobra.Command{
		Use:   "result {token}",
		Short: "Fetch the outcome of a transaction, and optionally acknowledge it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.GetTransactionResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ack {
				if err := client.AcknowledgeTransaction(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&ack, "ack", false, "acknowledge the transaction after reading it")
	return cmd
}

func newFeesCmd() *cobra.Command {
	var noIVA bool
	var paymentType string

	cmd := &cobra.Command{
		Use:   "fees {amount}",
		Short: "Estimate the Webpay commission on an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}
			schedule := webpay.FeeSchedule{
				CreditPercent: webpay.DefaultCreditFeePercent,
				DebitPercent:  webpay.DefaultDebitFeePercent,
				IVAFactor:     webpay.DefaultIVAFactor,
			}
			if path, _ := cmd.Flags().GetString(flagConfig); cmd.Flags().Changed(flagConfig) {
				cfg, err := webpay.LoadConfig(path)
				if err != nil {
					return err
				}
				schedule = webpay.FeeSchedule{
					CreditPercent: cfg.CreditFeePercent,
					DebitPercent:  cfg.DebitFeePercent,
					IVAFactor:     cfg.IVAFactor,
				}
			}
			fees := schedule.Calc(webpay.Transaction{Amount: amount, PaymentTypeCode: paymentType}, noIVA)
			fmt.Fprintf(cmd.OutOrStdout(), "subtotal: %s\niva: %s\ntotal: %s\n", fees.Subtotal, fees.IVA, fees.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&paymentType, "payment-type", "VN", "payment type code; VD for debit")
	cmd.Flags().BoolVar(&noIVA, "no-iva-below-180", false, "charge no IVA on fees under 180 pesos")
	return cmd
}

// loadIdentity reads the merchant key pair from --key/--cert, or from the
// configuration file when they are not given.
func loadIdentity(cmd *cobra.Command) (*webpay.Identity, error) {
	keyPath, _ := cmd.Flags().GetString(flagKey)
	certPath, _ := cmd.Flags().GetString(flagCert)
	if keyPath == "" || certPath == "" {
		client, err := newClient(cmd)
		if err != nil {
			return nil, err
		}
		return client.Identity(), nil
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	return webpay.LoadIdentity(key, cert)
}

func newClient(cmd *cobra.Command) (*webpay.Client, error) {
	path, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := webpay.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool(flagVerbose); verbose {
		cfg.Verbose = true
	}
	var opts []webpay.Option
	if !cfg.Verbose {
		opts = append(opts, webpay.WithLogger(zap.NewNop()))
	}
	return webpay.NewClient(*cfg, opts...)
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(cmd.InOrStdin())
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
