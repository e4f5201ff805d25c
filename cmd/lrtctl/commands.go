package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/coldbell/restake/backend/internal/config"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/pda"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lrtctl",
		Short:         "Inspect liquid restaking pool addresses and instruction data.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPoolCmd(),
		newVaultCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newErrorsCmd(),
	)
	return root
}

func newPoolCmd() *cobra.Command {
	var programID, inputMint, restakedMint, variant string
	cmd := &cobra.Command{
		Use:   "pool <output-mint>",
		Short: "Derive the pool address and vaults for an output mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLocalnetConfig()
			if err != nil {
				return err
			}
			if variant == "" {
				variant = cfg.Variant
			}
			v, err := lrt.ParseVariant(variant)
			if err != nil {
				return err
			}
			program, err := pubkeyOr(programID, cfg.LRTProgramID)
			if err != nil {
				return fmt.Errorf("program: %w", err)
			}
			input, err := pubkeyOr(inputMint, cfg.InputMint)
			if err != nil {
				return fmt.Errorf("input mint: %w", err)
			}
			output, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("output mint: %w", err)
			}

			seeds := pda.PoolSeeds{InputMint: input, OutputMint: output, Restaked: v.Restaked()}
			if seeds.Restaked {
				if seeds.RestakedMint, err = pubkeyOr(restakedMint, cfg.RestakedMint); err != nil {
					return fmt.Errorf("restaked mint: %w", err)
				}
			}
			pool, bump, err := pda.DerivePoolAddress(program, seeds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "variant:      %s\n", v)
			fmt.Fprintf(out, "pool:         %s\n", pool)
			fmt.Fprintf(out, "bump:         %d\n", bump)
			fmt.Fprintf(out, "input vault:  %s\n", pda.MustDeriveVaultAddress(pool, input))
			if seeds.Restaked {
				fmt.Fprintf(out, "restaked vault: %s\n", pda.MustDeriveVaultAddress(pool, seeds.RestakedMint))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&programID, "program", "", "pool program id (defaults to LRT_PROGRAM_ID)")
	cmd.Flags().StringVar(&inputMint, "input-mint", "", "input mint (defaults to LRT_INPUT_MINT)")
	cmd.Flags().StringVar(&restakedMint, "restaked-mint", "", "restaked mint (defaults to LRT_RESTAKED_MINT)")
	cmd.Flags().StringVar(&variant, "variant", "", "direct or restaked (defaults to LRT_VARIANT)")
	return cmd
}

func newVaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault <owner> <mint>",
		Short: "Derive the associated token account of owner for mint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("owner: %w", err)
			}
			mint, err := solana.PublicKeyFromBase58(args[1])
			if err != nil {
				return fmt.Errorf("mint: %w", err)
			}
			vault, err := pda.DeriveVaultAddress(owner, mint)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), vault)
			return nil
		},
	}
}

func newEncodeCmd() *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "encode <instruction>",
		Short: "Encode pool instruction data as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ReplaceAll(strings.TrimSpace(args[0]), "-", "_")
			data, err := lrt.EncodeInstructionData(name, amount)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount in base units")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode pool instruction data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[0]), "0x"))
			if err != nil {
				return fmt.Errorf("decode hex: %w", err)
			}
			decoded, err := lrt.DecodeInstructionData(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", decoded.Name, decoded.Amount)
			return nil
		},
	}
}

func newErrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "List program error codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for code := uint32(6000); ; code++ {
				perr, ok := lrt.ErrorByCode(code)
				if !ok {
					return nil
				}
				fmt.Fprintf(out, "%d\t%s\t%s\n", perr.Code, perr.Name, perr.Msg)
			}
		},
	}
}

func pubkeyOr(raw string, fallback solana.PublicKey) (solana.PublicKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return solana.PublicKeyFromBase58(raw)
}
