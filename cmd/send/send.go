package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dotpay/internal/amount"
	"dotpay/internal/chain"
	"dotpay/internal/domain"
	"dotpay/internal/forex"
	"dotpay/internal/recipient"
	"dotpay/internal/sendflow"
	"dotpay/pkg/errors"
)

type sendOptions struct {
	kind     string
	to       string
	amount   string
	currency string
	note     string
	yes      bool
}

func sendCmd() *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send tokens to a DotPay user or wallet",
		Long: `Resolve a recipient, review the amount, submit the transfer and wait
for confirmation. The recipient is notified once the transfer is mined.`,
		Example:      `  send --kind handle --to @alice --amount 1,234.5 --currency LOCAL --note "rent"`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", string(domain.RecipientHandle), "Recipient kind (dotpay, handle, wallet, email, phone)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Recipient identifier")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "Amount to send")
	cmd.Flags().StringVar(&opts.currency, "currency", string(domain.CurrencyToken), "Currency of --amount (LOCAL or TOKEN)")
	cmd.Flags().StringVar(&opts.note, "note", "", "Optional note for the recipient")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Submit without asking for confirmation")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runSend(ctx context.Context, opts *sendOptions, in io.Reader, out io.Writer) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	token := chain.TokenFromConfig(e.cfg.Chain)
	sender := e.rpc.SenderAddress()
	currency := domain.DisplayCurrency(strings.ToUpper(opts.currency))
	if currency != domain.CurrencyLocal && currency != domain.CurrencyToken {
		return fmt.Errorf("unknown currency %q", opts.currency)
	}

	resolver := recipient.NewResolver(e.directory, sender, e.cfg.Resolver.Debounce, e.log)
	defer resolver.Close()

	snap, err := resolve(ctx, resolver, domain.RecipientKind(strings.ToLower(opts.kind)), opts.to)
	if err != nil {
		return err
	}
	if !snap.Ready() {
		return fmt.Errorf("%s", snap.Message)
	}

	rate := decimal.Zero
	rates := forex.NewService(nil, forex.ProvidersFromConfig(e.cfg.Forex, e.log), e.cfg.Forex.LocalCurrency, token.Symbol, e.cfg.Forex.CacheTTL, e.log)
	if currency == domain.CurrencyLocal {
		r, err := rates.GetRate(ctx)
		if err != nil {
			return err
		}
		rate = r.Rate
	}

	var notifier sendflow.Notifier
	if e.directory.DeliveryConfigured() {
		notifier = &reconcileNotifier{reconciler: e.reconciler, sender: sender}
	} else {
		fmt.Fprintln(out, "Directory service not configured; the recipient will not be notified.")
	}

	flow := sendflow.New(resolver, e.rpc, chain.NewConfirmer(e.rpc, e.cfg.Chain.ConfirmInterval), notifier, token, e.log)
	defer flow.Close()
	flow.OnEvent(func(ev sendflow.Event) { printEvent(out, ev, token) })

	if balance, err := e.rpc.TokenBalance(ctx, token.Contract, sender); err == nil {
		flow.SetBalance(balance)
	} else {
		e.log.Warn("Balance unavailable", map[string]interface{}{"error": err.Error()})
	}
	if err := flow.SetAmount(opts.amount, currency, rate); err != nil {
		return err
	}
	if err := flow.SetNote(opts.note); err != nil {
		return err
	}
	if err := flow.Review(); err != nil {
		return fmt.Errorf("%s", errors.UserMessage(err))
	}

	review := flow.Snapshot()
	fmt.Fprintf(out, "To:     %s (%s)\n", review.Recipient.DisplayName, review.Recipient.SettlementAddress)
	fmt.Fprintf(out, "Amount: %s %s\n", amount.Format(review.TokenBaseUnits(), token.Decimals, 2), token.Symbol)
	if currency == domain.CurrencyLocal {
		fmt.Fprintf(out, "        %s %s at %s\n", amount.Sanitize(opts.amount), e.cfg.Forex.LocalCurrency, rate.String())
	}
	if opts.note != "" {
		fmt.Fprintf(out, "Note:   %s\n", opts.note)
	}

	if !opts.yes && !confirm(in, out) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	if currency == domain.CurrencyLocal {
		// The prompt may have waited; convert at the rate current at submit.
		if r, err := rates.GetRate(ctx); err == nil {
			if err := flow.SetRate(r.Rate); err != nil {
				return err
			}
		}
	}
	if balance, err := e.rpc.TokenBalance(ctx, token.Contract, sender); err == nil {
		flow.SetBalance(balance)
	}

	if _, err := flow.Submit(ctx); err != nil {
		return fmt.Errorf("%s", errors.UserMessage(err))
	}

	// Confirmation and notification run in the background; Ctrl-C abandons them.
	done := make(chan struct{})
	go func() {
		flow.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(out, "Stopped waiting; the transfer was already broadcast.")
	}
	return nil
}

// resolve feeds input to the resolver and waits for a settled state.
func resolve(ctx context.Context, r *recipient.Resolver, kind domain.RecipientKind, input string) (recipient.Snapshot, error) {
	settled := make(chan recipient.Snapshot, 1)
	r.OnChange(func(s recipient.Snapshot) {
		switch s.State {
		case recipient.StateValidating, recipient.StateResolving, recipient.StateIdle:
			return
		}
		select {
		case settled <- s:
		default:
		}
	})
	r.Update(kind, input)

	select {
	case s := <-settled:
		// Wallet input resolves at once; enrichment may have landed since.
		if s.State == recipient.StateResolved && kind == domain.RecipientWallet {
			return r.Snapshot(), nil
		}
		return s, nil
	case <-ctx.Done():
		return recipient.Snapshot{}, ctx.Err()
	}
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Send? [y/N] ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printEvent(out io.Writer, ev sendflow.Event, token domain.Token) {
	switch ev.Type {
	case sendflow.EventSubmitting:
		fmt.Fprintln(out, "Submitting...")
	case sendflow.EventSubmitted:
		fmt.Fprintf(out, "%s %s\n", ev.Notice, ev.Snapshot.Transfer.TransactionID)
		fmt.Fprintln(out, "Waiting for confirmation...")
	case sendflow.EventConfirmed:
		fmt.Fprintf(out, "Confirmed: %s %s delivered.\n", amount.Format(ev.Snapshot.TokenBaseUnits(), token.Decimals, 2), token.Symbol)
	case sendflow.EventConfirmUnknown:
		fmt.Fprintln(out, "Confirmation not observed yet; check the explorer later.")
	case sendflow.EventFailed, sendflow.EventReverted, sendflow.EventNotifyFailed:
		msg := ev.Notice
		if ev.Snapshot.LastError != nil && ev.Type == sendflow.EventFailed {
			msg = fmt.Sprintf("%s %s", msg, errors.UserMessage(ev.Snapshot.LastError))
		}
		fmt.Fprintln(os.Stderr, msg)
	}
}
