package main

import (
	"fmt"
	"io"
	"os"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"transit/internal/app"
	"transit/internal/config"
	"transit/internal/roster"
	"transit/internal/tabular"
)

func newRootCommand(cfg config.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "transitctl",
		Short:         "Operator tools for the campus transit roster and attendance ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newImportCommand(cfg))
	cmd.AddCommand(newExportCommand(cfg))
	cmd.AddCommand(newHashCommand(cfg))
	cmd.AddCommand(newQRCommand())
	return cmd
}

// withApp builds the backends for one command run.
func withApp(cmd *cobra.Command, cfg config.App, fn func(a *app.App) error) error {
	a, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newImportCommand(cfg config.App) *cobra.Command {
	var role, bus string
	cmd := &cobra.Command{
		Use:   "import <file.csv|file.xlsx>",
		Short: "Merge a roster sheet into a role's table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := roster.ParseRole(role)
			if err != nil {
				return err
			}
			if roster.NormalizeID(bus) == "" && r != roster.RoleAdmin {
				return fmt.Errorf("--bus is required for %s", r)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			table, err := tabular.Read(args[0], f)
			if err != nil {
				return err
			}
			return withApp(cmd, cfg, func(a *app.App) error {
				n, err := a.Roster.MergeImport(cmd.Context(), r, bus, roster.FromTable(r, table))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d %s rows for %s\n", n, r, bus)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Student, Staff, Driver or Admin")
	cmd.Flags().StringVar(&bus, "bus", "", "bus the sheet's riders are assigned to")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newExportCommand(cfg config.App) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the attendance ledger as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, func(a *app.App) error {
				var w io.Writer = cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return a.Scans.Export(cmd.Context(), w)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newHashCommand(cfg config.App) *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "hash-passwords",
		Short: "Replace plaintext roster credentials with bcrypt hashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets := roster.Roles
			if len(roles) > 0 {
				targets = nil
				for _, s := range roles {
					r, err := roster.ParseRole(s)
					if err != nil {
						return err
					}
					targets = append(targets, r)
				}
			}
			cfg := cfg
			cfg.HashCredential = true
			return withApp(cmd, cfg, func(a *app.App) error {
				for _, r := range targets {
					n, err := a.Roster.Rehash(cmd.Context(), r)
					if err != nil {
						return fmt.Errorf("%s: %w", r.Table(), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credentials hashed\n", r.Table(), n)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to rehash (default all)")
	return cmd
}

func newQRCommand() *cobra.Command {
	var out string
	var size int
	cmd := &cobra.Command{
		Use:   "qr <bus-id|identity-id>",
		Short: "Render a boarding QR code as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := roster.NormalizeID(args[0])
			if content == "" {
				return fmt.Errorf("nothing to encode")
			}
			if out == "" {
				out = content + ".png"
			}
			if err := qrcode.WriteFile(content, qrcode.Medium, size, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <id>.png)")
	cmd.Flags().IntVar(&size, "size", 512, "image size in pixels")
	return cmd
}
