// cmd/lpagent/commands.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-lp-agent/internal/export"
	"github.com/rovshanmuradov/solana-lp-agent/internal/summary"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signatureArg(c *cli.Context) (solana.Signature, error) {
	if c.NArg() < 1 {
		return solana.Signature{}, fmt.Errorf("transaction signature is required")
	}
	sig, err := solana.SignatureFromBase58(c.Args().Get(0))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature: %w", err)
	}
	return sig, nil
}

func summarizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "summarize",
		Usage:     "Decode a confirmed transaction and value its token flows",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			sig, err := signatureArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			defer e.log.TrackPerformance("summarize")()

			svc, err := e.summaryService()
			if err != nil {
				return err
			}
			s, err := svc.Summarize(c.Context, sig)
			if err != nil {
				return err
			}
			e.log.WithTransaction(sig.String()).Info("Summary ready",
				zap.Int("transfers", len(s.Transfers)),
				zap.String("usd_net_delta", s.USDNetDelta.String()))
			return printJSON(s)
		},
	}
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Print the decoded instruction tree of a transaction",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			sig, err := signatureArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			tx, err := e.client.GetTransaction(c.Context, sig)
			if err != nil {
				return err
			}
			return printJSON(e.decoder.DecodeTransaction(c.Context, tx))
		},
	}
}

func idlCommand() *cli.Command {
	return &cli.Command{
		Name:      "idl",
		Usage:     "Fetch and cache the IDL of a program",
		ArgsUsage: "PROGRAM_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("program id is required")
			}
			program, err := solana.PublicKeyFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid program id: %w", err)
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			entry, err := e.registry.Resolve(c.Context, program)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"program": program.String(),
				"name":    entry.Name,
				"builtin": entry.Builtin,
				"found":   entry.Schema != nil,
			}
			if entry.Schema != nil {
				names := make([]string, 0, len(entry.Schema.Instructions))
				for _, ix := range entry.Schema.Instructions {
					names = append(names, ix.Name)
				}
				out["instructions"] = names
				out["errors"] = len(entry.Schema.Errors)
			}
			return printJSON(out)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Summarize transactions and write them to CSV or JSON",
		ArgsUsage: "SIGNATURE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: string(export.FormatCSV), Usage: "csv or json"},
			&cli.StringFlag{Name: "out", Value: "exports", Usage: "Output directory"},
			&cli.StringFlag{Name: "mint", Usage: "Only transactions that moved this mint"},
			&cli.BoolFlag{Name: "only-success", Usage: "Skip failed transactions"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("at least one signature is required")
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			svc, err := e.summaryService()
			if err != nil {
				return err
			}
			summaries := make([]*summary.Summary, 0, c.NArg())
			for _, raw := range c.Args().Slice() {
				sig, err := solana.SignatureFromBase58(raw)
				if err != nil {
					return fmt.Errorf("invalid signature %q: %w", raw, err)
				}
				s, err := svc.Summarize(c.Context, sig)
				if err != nil {
					return err
				}
				summaries = append(summaries, s)
			}

			path, err := export.NewSummaryExporter(e.log.Logger).Export(summaries, export.ExportOptions{
				Format:      export.ExportFormat(c.String("format")),
				MintFilter:  c.String("mint"),
				OnlySuccess: c.Bool("only-success"),
				OutputDir:   c.String("out"),
			})
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the confirmation status of a submitted transaction",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			sig, err := signatureArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			st, err := e.transactionManager().Status(c.Context, sig)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"status": st,
				"nodes":  e.pool.Stats(),
				"events": e.bus.Stats(),
			})
		},
	}
}

func ensureATACommand() *cli.Command {
	return &cli.Command{
		Name:      "ensure-ata",
		Usage:     "Create the wallet's associated token account for a mint if missing",
		ArgsUsage: "MINT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "wallets", Usage: "CSV file with Name,PrivateKeyBase58 rows (overrides wallet_key)"},
			&cli.StringFlag{Name: "wallet", Usage: "Wallet name from --wallets"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("mint is required")
			}
			mint, err := solana.PublicKeyFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid mint: %w", err)
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			if e.wallet == nil {
				return fmt.Errorf("wallet_key or --wallets is required")
			}

			set, err := e.wallet.EnsureATASet(mint)
			if err != nil {
				return err
			}
			_, rec, err := e.transactionManager().SendAndConfirm(c.Context, "ensure-ata", e.wallet.PublicKey, transaction.SendOptions{}, set)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"signature": rec.Signature.String(),
				"attempt":   rec.Attempt,
				"confirmed": rec.Confirmed,
			})
		},
	}
}
