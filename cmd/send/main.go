// ==============================================================================
// DOTPAY SEND CLI - cmd/send/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dotpay/internal/chain"
	"dotpay/internal/directory"
	"dotpay/internal/notification"
	"dotpay/internal/reconcile"
	"dotpay/internal/sendflow"
	"dotpay/pkg/config"
	"dotpay/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := sendCmd()
	rootCmd.Version = Version
	rootCmd.AddCommand(notifyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env bundles what both commands need from configuration.
type env struct {
	cfg        *config.Config
	log        logger.Logger
	rpc        *chain.RPCClient
	directory  *directory.Client
	reconciler *reconcile.Service
}

func setup(ctx context.Context) (*env, error) {
	cfg := config.Load()
	log := logger.NewWithOptions("send-cli", logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	if err := cfg.ValidateSender(); err != nil {
		return nil, err
	}
	if cfg.Chain.TokenContract == "" {
		return nil, fmt.Errorf("missing required configuration: USDC_CONTRACT_ADDRESS")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	rpc, err := chain.Dial(dialCtx, cfg.Chain.RPCURL, cfg.Chain.ChainID, log)
	if err != nil {
		return nil, err
	}
	if err := rpc.WithSigner(cfg.Chain.SenderKey); err != nil {
		rpc.Close()
		return nil, err
	}

	dir := directory.NewClient(cfg.Directory, log)
	// Deliveries are tracked in memory for the lifetime of one command.
	dispatcher := notification.NewDispatcher(dir, notification.NewMemoryStore(), nil, cfg.Reconcile.LockTTL, log)

	return &env{
		cfg:        cfg,
		log:        log,
		rpc:        rpc,
		directory:  dir,
		reconciler: reconcile.NewService(rpc, dispatcher, chain.TokenFromConfig(cfg.Chain), cfg.Reconcile, log),
	}, nil
}

func (e *env) Close() {
	e.rpc.Close()
}

// reconcileNotifier runs reconciliation in-process on behalf of the signer.
type reconcileNotifier struct {
	reconciler *reconcile.Service
	sender     string
}

func (n *reconcileNotifier) NotifyPayment(ctx context.Context, req sendflow.NotifyRequest) error {
	_, err := n.reconciler.Reconcile(ctx, reconcile.Request{
		Sender:    n.sender,
		Recipient: req.Recipient,
		TxHash:    req.TxHash,
		Note:      req.Note,
	})
	return err
}

func notifyCmd() *cobra.Command {
	var txHash, to, note string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Verify a submitted transfer and notify its recipient",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := e.reconciler.Reconcile(cmd.Context(), reconcile.Request{
				Sender:    e.rpc.SenderAddress(),
				Recipient: to,
				TxHash:    txHash,
				Note:      note,
			})
			if err != nil {
				return err
			}

			n := result.Notification
			fmt.Printf("Notified %s: %s base units of %s (log %d, %s)\n", n.ToAddress, n.Value, n.TokenSymbol, n.LogIndex, n.EventAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&txHash, "tx", "", "Transaction hash")
	cmd.Flags().StringVar(&to, "to", "", "Recipient wallet address")
	cmd.Flags().StringVar(&note, "note", "", "Optional note (max 180 characters)")
	_ = cmd.MarkFlagRequired("tx")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
