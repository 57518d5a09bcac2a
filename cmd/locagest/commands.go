package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"locagest/internal/cli"
	"locagest/internal/core"
	"locagest/internal/export"
	"locagest/internal/migration"
	"locagest/internal/services"
	"locagest/internal/summary"
)

var errUsage = errors.New("invalid arguments")

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runSummary(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: summary takes one contract id", errUsage)
	}
	v, err := app.Service.Summary(ctx, args[0])
	if err != nil {
		return err
	}
	printSummary(out, v)
	return nil
}

func printSummary(out io.Writer, v services.ContractView) {
	s := v.Summary
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Contrat\t%s (%s)\n", v.Contract.ContractNumber, v.Contract.ID)
	fmt.Fprintf(tw, "Client\t%s\n", v.Contract.CustomerName)
	fmt.Fprintf(tw, "Période\t%s → %s (%d jours)\n", v.Contract.StartDate, v.Contract.EndDate, s.DurationDays)
	fmt.Fprintf(tw, "Statut contrat\t%s\n", v.Contract.Status)
	fmt.Fprintf(tw, "Total\t%s\n", s.Total)
	fmt.Fprintf(tw, "Avance\t%s\n", s.Advance)
	fmt.Fprintf(tw, "Payé\t%s\n", s.TotalPaid)
	fmt.Fprintf(tw, "Reste\t%s\n", s.Remaining)
	fmt.Fprintf(tw, "Statut\t%s\n", strings.Join(labels(summary.Facets(s)), ", "))
	if s.OverdueDays > 0 {
		fmt.Fprintf(tw, "Retard\t%d jours\n", s.OverdueDays)
	}
	if s.ExtensionDays > 0 {
		fmt.Fprintf(tw, "Prolongation\t%d jours\n", s.ExtensionDays)
	}
	if s.Breakdown.PendingChequesCount > 0 {
		fmt.Fprintf(tw, "Chèques à encaisser\t%d (%s)\n", s.Breakdown.PendingChequesCount, s.Breakdown.PendingCheques)
	}
	fmt.Fprintf(tw, "Calculé au\t%s (%s)\n", s.AsOf, s.Mode)
	tw.Flush()

	if len(s.Payments) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tMODE\tMONTANT\tRÉF")
	for _, p := range s.Payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.PaymentDate, p.Method, p.Amount, p.CheckReference)
	}
	tw.Flush()
}

func labels(ls []summary.Label) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = string(l)
	}
	return out
}

func runList(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	fs := newFlagSet("list", out)
	status := fs.String("status", "", "financial status filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var filter summary.Label
	if *status != "" {
		l, err := summary.ParseLabel(*status)
		if err != nil {
			return err
		}
		filter = l
	}

	views, err := app.Service.Summaries(ctx, filter)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRAT\tCLIENT\tFIN\tTOTAL\tRESTE\tSTATUT\tRETARD")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			v.Contract.ContractNumber,
			v.Contract.CustomerName,
			v.Contract.EndDate,
			v.Summary.Total,
			v.Summary.Remaining,
			strings.Join(labels(summary.Facets(v.Summary)), ", "),
			v.Summary.OverdueDays)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d contrats\n", len(views))
	return nil
}

func runStats(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	c, err := app.Service.Counters(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Contrats\t%d\n", c.Total)
	for _, l := range summary.Labels {
		fmt.Fprintf(tw, "%s\t%d\n", l, c.ByLabel[l])
	}
	fmt.Fprintf(tw, "En retard\t%d\n", c.Overdue)
	fmt.Fprintf(tw, "Encaissé\t%s\n", c.Collected)
	fmt.Fprintf(tw, "Reste dû\t%s\n", c.Outstanding)
	return tw.Flush()
}

func runPay(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	fs := newFlagSet("pay", out)
	contractID := fs.String("contract", "", "contract id")
	amount := fs.String("amount", "", "amount, e.g. 150.00")
	method := fs.String("method", string(core.MethodCash), "cash, transfer or cheque")
	date := fs.String("date", "", "payment date YYYY-MM-DD (default today)")
	ref := fs.String("ref", "", "cheque reference")
	name := fs.String("name", "", "cheque drawer name")
	direction := fs.String("direction", string(core.ChequeReceived), "cheque direction: received or sent")
	deposit := fs.String("deposit-status", string(core.ChequeNotDeposited), "cheque deposit status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *contractID == "" || *amount == "" {
		return fmt.Errorf("%w: -contract and -amount are required", errUsage)
	}

	m, err := core.ParseMoney(*amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	payDate := core.Today()
	if *date != "" {
		if payDate, err = core.ParseDate(*date); err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
	}

	p := core.Payment{
		ContractID:  *contractID,
		Amount:      m,
		Method:      core.PaymentMethod(*method),
		PaymentDate: payDate,
	}
	if p.Method == core.MethodCheque {
		p.CheckReference = *ref
		p.CheckName = *name
		p.CheckDirection = core.ChequeDirection(*direction)
		p.CheckDepositStatus = core.ChequeDepositStatus(*deposit)
	}

	saved, err := app.Service.RecordPayment(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Paiement %s enregistré: %s (%s)\n", saved.ID, saved.Amount, saved.Method)

	v, err := app.Service.Summary(ctx, saved.ContractID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reste: %s, statut: %s\n", v.Summary.Remaining, v.Summary.Statut)
	return nil
}

func runCheque(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	fs := newFlagSet("cheque", out)
	paymentID := fs.String("payment", "", "payment id")
	status := fs.String("status", string(core.ChequeDeposited), "deposited or not-deposited")
	date := fs.String("date", "", "deposit date YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *paymentID == "" {
		return fmt.Errorf("%w: -payment is required", errUsage)
	}

	st := core.ChequeDepositStatus(*status)
	if st != core.ChequeDeposited && st != core.ChequeNotDeposited {
		return fmt.Errorf("%w: %q", core.ErrInvalidCheque, *status)
	}
	var depositDate *core.Date
	if *date != "" {
		d, err := core.ParseDate(*date)
		if err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
		depositDate = &d
	}

	p, err := app.Service.UpdateChequeStatus(ctx, *paymentID, st, depositDate)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Chèque %s: %s\n", p.ID, p.CheckDepositStatus)
	return nil
}

func runMigrate(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	fs := newFlagSet("migrate", out)
	dryRun := fs.Bool("dry-run", false, "compute and report without writing")
	yes := fs.Bool("yes", false, "confirm the recalculation of every contract")
	todayFlag := fs.String("today", "", "compute as of YYYY-MM-DD instead of today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := services.MigrationRequest{DryRun: *dryRun, Confirmed: *yes}
	if *todayFlag != "" {
		d, err := core.ParseDate(*todayFlag)
		if err != nil {
			return fmt.Errorf("parse -today: %w", err)
		}
		req.Today = d
	}

	report, err := app.Service.RunMigration(ctx, req)
	if errors.Is(err, services.ErrConfirmationRequired) {
		return fmt.Errorf("%w: rerun with -yes to write, or -dry-run to preview", err)
	}
	if report != nil {
		printReport(out, report)
	}
	return err
}

func runRestore(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	fs := newFlagSet("restore", out)
	yes := fs.Bool("yes", false, "confirm replacing every contract and payment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: restore takes one snapshot file", errUsage)
	}
	snap, err := export.ReadSnapshot(fs.Arg(0))
	if err != nil {
		return err
	}
	if !*yes {
		fmt.Fprintf(out, "Snapshot %s du %s: %d contrats, %d paiements. Relancer avec -yes pour restaurer.\n",
			snap.ID, snap.TakenAt.Format("2006-01-02 15:04"), len(snap.Contracts), len(snap.Payments))
		return nil
	}
	if err := app.Service.Restore(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(out, "Snapshot %s restauré: %d contrats, %d paiements\n", snap.ID, len(snap.Contracts), len(snap.Payments))
	return nil
}

func runReport(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	r, err := app.Service.OutstandingReport(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRAT\tCLIENT\tSTATUT\tRESTE\tRETARD")
	for _, l := range r.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", l.ContractNumber, l.CustomerName, l.Statut, l.Remaining, l.OverdueDays)
	}
	tw.Flush()
	fmt.Fprintf(out, "Reste dû au %s: %s\n", r.AsOf, r.Counters.Outstanding)

	if app.Config.SheetsEnabled() {
		ref, err := app.Service.PublishOutstandingReport(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Publié: %s\n", ref)
	}
	return nil
}

func printReport(out io.Writer, r *migration.Report) {
	fmt.Fprintf(out, "Run %s au %s (%s) en %s\n", r.RunID, r.AsOf, r.Mode, r.Duration().Round(time.Millisecond))
	if r.Snapshot != nil {
		fmt.Fprintf(out, "Snapshot %s: %s\n", r.Snapshot.ID, r.Snapshot.Path)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range r.Entries {
		switch {
		case e.Err != nil:
			fmt.Fprintf(tw, "ERREUR\t%s\t%v\n", e.ContractNumber, e.Err)
		case e.Changed:
			fmt.Fprintf(tw, "CORRIGÉ\t%s\t%s → %s\n", e.ContractNumber, describe(e.Before), describe(e.After))
		}
	}
	tw.Flush()
	fmt.Fprintln(out, r.Summary())
}

func describe(d *core.DerivedFields) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%dj %s reste %s %s", d.DurationDays, d.Total, d.Remaining, d.Statut)
}
