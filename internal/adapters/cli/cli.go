package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/config"
	"invoice-reconciler/internal/core"
)

// ServiceFactory builds the application service on first use so commands that need no
// database (schema) run without one. The returned cleanup func is always non-nil on success.
type ServiceFactory func(ctx context.Context, cfg *config.Config) (app.ApplicationService, func(), error)

type runner struct {
	cfgFile string
	cfg     *config.Config
	build   ServiceFactory
}

// NewRootCommand wires the reconciler command tree.
func NewRootCommand(build ServiceFactory) *cobra.Command {
	r := &runner{build: build}

	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Invoice to purchase order reconciliation",
		Long: `Reconciler matches vendor invoices to open purchase orders, scores price and
quantity variances against vendor tolerances, and records receipts.

Examples:
  reconciler reconcile 1042
  reconciler reconcile 1042 --dry-run
  reconciler unmapped export --vendor 7 --out backlog.xlsx
  reconciler schema`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(r.cfgFile)
			if err != nil {
				return err
			}
			r.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&r.cfgFile, "config", "", "config file (optional)")

	root.AddCommand(r.reconcileCmd(), r.unmappedCmd(), schemaCmd())
	return root
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context, build ServiceFactory) error {
	return NewRootCommand(build).ExecuteContext(ctx)
}

func (r *runner) service(ctx context.Context) (app.ApplicationService, func(), error) {
	return r.build(ctx, r.cfg)
}

func (r *runner) reconcileCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile <invoice-id>",
		Short: "Match an invoice to its purchase order and record the receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := strconv.Atoi(args[0])
			if err != nil || invoiceID <= 0 {
				return fmt.Errorf("invalid invoice id %q", args[0])
			}

			svc, cleanup, err := r.service(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			var res *core.ReconciliationResult
			if dryRun {
				res, err = svc.PreviewReconciliation(cmd.Context(), invoiceID)
			} else {
				res, err = svc.ReconcileInvoice(cmd.Context(), invoiceID)
			}
			if err != nil {
				return describeError(err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the match without writing anything")
	return cmd
}

func (r *runner) unmappedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmapped",
		Short: "Inspect the unmapped-item backlog",
	}

	var req app.UnmappedItemsRequest
	list := &cobra.Command{
		Use:   "list",
		Short: "Print a vendor's unmapped items as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := r.service(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.ListUnmappedItems(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	list.Flags().IntVar(&req.VendorID, "vendor", 0, "vendor id (required)")
	list.Flags().StringVar(&req.Status, "status", "", "review status filter: pending, mapped or ignored")
	_ = list.MarkFlagRequired("vendor")

	var exportReq app.UnmappedItemsRequest
	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a vendor's unmapped items to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := r.service(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			n, err := svc.ExportUnmappedItems(cmd.Context(), exportReq, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d unmapped item(s) to %s\n", n, out)
			return nil
		},
	}
	export.Flags().IntVar(&exportReq.VendorID, "vendor", 0, "vendor id (required)")
	export.Flags().StringVar(&exportReq.Status, "status", "", "review status filter: pending, mapped or ignored")
	export.Flags().StringVar(&out, "out", "unmapped_items.xlsx", "output file")
	_ = export.MarkFlagRequired("vendor")

	cmd.AddCommand(list, export)
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of a reconciliation result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := app.ResultSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

// describeError prefixes reconciliation failures with their stable code and routing hint.
func describeError(err error) error {
	re, ok := core.AsReconcileError(err)
	if !ok {
		return err
	}
	switch {
	case re.Fallback != "":
		return fmt.Errorf("[%s] %s (route to %s)", re.Code, re.Message, re.Fallback)
	case re.Status >= 500 && re.Err != nil:
		return fmt.Errorf("[%s] %s: %w", re.Code, re.Message, re.Err)
	default:
		return fmt.Errorf("[%s] %s", re.Code, re.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
