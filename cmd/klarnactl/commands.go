package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"klarna-checkout-service/config"
	"klarna-checkout-service/internal/broker"
	"klarna-checkout-service/internal/klarna"
	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/redisclient"
	"klarna-checkout-service/internal/service"
	"klarna-checkout-service/internal/store"
	"klarna-checkout-service/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var remoteID string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.NewStore(config.Load().Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [order.json]",
	Short: "Insert an order with its items and adjustments",
	Long: `Insert an order read from a JSON file, or from stdin when the path is "-".

Examples:
  klarnactl import testdata/order.json
  cat order.json | klarnactl import -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		var order models.Order
		if err := json.NewDecoder(in).Decode(&order); err != nil {
			return fmt.Errorf("invalid order: %w", err)
		}
		if order.Workflow == "" {
			order.Workflow = models.WorkflowDefault
		}
		if order.State == "" {
			order.State = models.OrderStateDraft
		}

		db, err := store.NewStore(config.Load().Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CreateOrder(cmd.Context(), &order); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created order %d\n", order.ID)
		return nil
	},
}

var payloadCmd = &cobra.Command{
	Use:   "payload [order-id]",
	Short: "Print the create request an order would send, without contacting Klarna",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}

		env, err := openEnv(false)
		if err != nil {
			return err
		}
		defer env.Close()

		payload, err := env.gateway.BuildPayload(cmd.Context(), orderID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), payload)
	},
}

var stateCmd = &cobra.Command{
	Use:   "state [order-id]",
	Short: "Print the derived payment state of an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}

		env, err := openEnv(false)
		if err != nil {
			return err
		}
		defer env.Close()

		state, err := env.gateway.State(cmd.Context(), orderID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), state)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [order-id]",
	Short: "Run the notify reconciliation for an order",
	Long: `Run the same reconciliation the Klarna push callback triggers. Use it
when a push was lost or the provider stopped retrying.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}

		env, err := openEnv(true)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.gateway.OnNotify(cmd.Context(), service.NotifyRequest{OrderID: orderID, RemoteID: remoteID})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [order-id]",
	Short: "Print the reconciliation audit trail of an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}

		db, err := store.NewStore(config.Load().Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.GetAuditEntries(cmd.Context(), orderID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&remoteID, "klarna-order-id", "", "remote id reported by Klarna, checked against the stored one")
}

type cliEnv struct {
	gateway *service.CheckoutService
	closers []func() error
	logger  *zap.Logger
}

// openEnv connects to the database. With live set it also connects to Redis
// and Kafka so the run takes the order lock and publishes its events.
func openEnv(live bool) (*cliEnv, error) {
	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return nil, err
	}
	env := &cliEnv{logger: util.GetLogger()}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, db.Close)

	var locker service.OrderLocker = unlockedOrders{}
	var publisher service.EventPublisher = discardEvents{}
	if live {
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Business.OrderLockTTL, cfg.Business.OrderLockWait, env.logger)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, rc.Close)
		locker = rc

		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentEvents, env.logger)
		env.closers = append(env.closers, producer.Close)
		publisher = broker.NewEventPublisher(producer)
	}

	env.gateway, err = service.NewKlarnaCheckout(cfg.Klarna, cfg.Server.PublicBaseURL, db, db,
		klarna.NewClient(cfg.Klarna, env.logger), locker, publisher, util.SystemClock{}, env.logger)
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *cliEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("Close failed", zap.Error(err))
		}
	}
	util.SyncLogger()
}

// unlockedOrders is used by read-only commands, which never take the lock
type unlockedOrders struct{}

func (unlockedOrders) LockOrder(ctx context.Context, orderID int64) (func(), error) {
	return func() {}, nil
}

// discardEvents is used by read-only commands, which publish nothing
type discardEvents struct{}

func (discardEvents) PublishCheckoutInitiated(context.Context, *models.CheckoutInitiatedEvent) error {
	return nil
}

func (discardEvents) PublishPaymentAuthorized(context.Context, *models.PaymentAuthorizedEvent) error {
	return nil
}

func (discardEvents) PublishPaymentCompleted(context.Context, *models.PaymentCompletedEvent) error {
	return nil
}

func (discardEvents) PublishReconciliationAnomaly(context.Context, *models.ReconciliationAnomalyEvent) error {
	return nil
}

func parseOrderID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
