package verifier

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/urfave/cli/v2"
)

// TokenIssuerName must match the issuer the enclave signs report tokens with.
const TokenIssuerName = "enclavekeeper"

const keyFlagName = "key"

// NewApp builds the verifier command line. Results are written to out.
func NewApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "verifier",
		Usage: "check enclave signatures offline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    keyFlagName,
				Usage:   "enclave signing key; prompted for when unset",
				EnvVars: []string{"SIGNING_KEY"},
			},
		},
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:      "verify-report",
				Usage:     "verify a signed report JSON file",
				ArgsUsage: "<report.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "X-Report-Token returned with the report"},
				},
				Action: func(cCtx *cli.Context) error {
					data, err := readArg(cCtx)
					if err != nil {
						return err
					}
					key, err := resolveKey(cCtx)
					if err != nil {
						return err
					}
					s, err := signing.NewSigner(key)
					if err != nil {
						return err
					}
					r, err := VerifyReport(s, data)
					if err != nil {
						return err
					}
					if tok := cCtx.String("token"); tok != "" {
						issuer, err := signing.NewTokenIssuer(key, TokenIssuerName, 0)
						if err != nil {
							return err
						}
						if err := VerifyReportToken(issuer, tok, r); err != nil {
							return err
						}
						fmt.Fprintf(out, "token ok\n")
					}
					fmt.Fprintf(out, "report %s ok (digest %s)\n", r.ReportID, r.Summary.AuditLogDigest)
					return nil
				},
			},
			{
				Name:      "verify-receipt",
				Usage:     "verify a /submit-data response",
				ArgsUsage: "<receipt.json>",
				Action: func(cCtx *cli.Context) error {
					s, data, err := signerAndArg(cCtx)
					if err != nil {
						return err
					}
					res, err := VerifyReceipt(s, data)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "receipt %s ok (%s)\n", res.ReceiptID, res.SafeDerivative)
					return nil
				},
			},
			{
				Name:      "verify-deletion",
				Usage:     "verify a deletion attestation",
				ArgsUsage: "<attestation.json>",
				Action: func(cCtx *cli.Context) error {
					s, data, err := signerAndArg(cCtx)
					if err != nil {
						return err
					}
					att, err := VerifyDeletion(s, data)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "deletion of %s at %s ok\n", att.UserIDHash, att.DeletionTimestamp)
					return nil
				},
			},
			{
				Name:  "verify-count",
				Usage: "verify a signed signup count",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "count", Required: true},
					&cli.StringFlag{Name: "timestamp", Required: true},
					&cli.StringFlag{Name: "signature", Required: true},
				},
				Action: func(cCtx *cli.Context) error {
					key, err := resolveKey(cCtx)
					if err != nil {
						return err
					}
					s, err := signing.NewSigner(key)
					if err != nil {
						return err
					}
					c := models.SignedCount{
						Count:     cCtx.Int64("count"),
						Timestamp: cCtx.String("timestamp"),
						Signature: cCtx.String("signature"),
					}
					if err := VerifyCount(s, c); err != nil {
						return err
					}
					fmt.Fprintf(out, "count %d ok\n", c.Count)
					return nil
				},
			},
		},
	}
}

func resolveKey(cCtx *cli.Context) (string, error) {
	if k := cCtx.String(keyFlagName); k != "" {
		return k, nil
	}
	return GetSigningKey(cCtx.App.ErrWriter)
}

func readArg(cCtx *cli.Context) ([]byte, error) {
	if cCtx.NArg() != 1 {
		return nil, errors.New("expected exactly one file argument")
	}
	return os.ReadFile(cCtx.Args().First())
}

func signerAndArg(cCtx *cli.Context) (*signing.Signer, []byte, error) {
	data, err := readArg(cCtx)
	if err != nil {
		return nil, nil, err
	}
	key, err := resolveKey(cCtx)
	if err != nil {
		return nil, nil, err
	}
	s, err := signing.NewSigner(key)
	if err != nil {
		return nil, nil, err
	}
	return s, data, nil
}
