package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/config"
	"github.com/ccm-platform/carbon-admin/internal/consumer"
	"github.com/ccm-platform/carbon-admin/internal/db"
	"github.com/ccm-platform/carbon-admin/internal/kafka"
	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/metrics"
	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Start event consumer (payment | user | wallet | listing)",
}

var consumerPaymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Consume payment.events into managed transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd, consumer.PaymentConsumerName, model.TopicPaymentEvents,
			func(dbx *sqlx.DB, processed repository.ProcessedEventsRepository) consumer.Handler {
				return consumer.NewPaymentHandler(dbx, processed, repository.NewTransactionsRepository(dbx))
			})
	},
}

var consumerUserCmd = &cobra.Command{
	Use:   "user",
	Short: "Consume user.events into managed users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd, consumer.UserConsumerName, model.TopicUserEvents,
			func(dbx *sqlx.DB, processed repository.ProcessedEventsRepository) consumer.Handler {
				return consumer.NewUserHandler(dbx, processed, repository.NewUsersRepository(dbx))
			})
	},
}

var consumerWalletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Consume wallet.events into managed wallet transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd, consumer.WalletConsumerName, model.TopicWalletEvents,
			func(dbx *sqlx.DB, processed repository.ProcessedEventsRepository) consumer.Handler {
				return consumer.NewWalletHandler(dbx, processed, repository.NewWalletTransactionsRepository(dbx))
			})
	},
}

var consumerListingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Consume listing.events into managed listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsumer(cmd, consumer.ListingConsumerName, model.TopicListingEvents,
			func(dbx *sqlx.DB, processed repository.ProcessedEventsRepository) consumer.Handler {
				return consumer.NewListingHandler(dbx, processed, repository.NewListingsRepository(dbx))
			})
	},
}

func init() {
	consumerCmd.AddCommand(consumerPaymentCmd)
	consumerCmd.AddCommand(consumerUserCmd)
	consumerCmd.AddCommand(consumerWalletCmd)
	consumerCmd.AddCommand(consumerListingCmd)
}

func runConsumer(cmd *cobra.Command, name, topic string, build func(*sqlx.DB, repository.ProcessedEventsRepository) consumer.Handler) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "carbon-admin"
	}
	groupID = groupID + "-" + name

	src := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer src.Close()

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	defer producer.Close()

	processed := repository.NewProcessedEventsRepository(dbx)
	handler := build(dbx, processed)

	r := consumer.NewRunner(name, topic, src, handler, producer)
	if cfg.Consumer.Prefetch > 0 {
		r.Workers = cfg.Consumer.Prefetch
	}
	if cfg.Consumer.MaxAttempts > 0 {
		r.MaxAttempts = cfg.Consumer.MaxAttempts
	}
	if cfg.Consumer.RetryBase > 0 {
		r.RetryBase = cfg.Consumer.RetryBase
	}
	if cfg.Consumer.RetryMax > 0 {
		r.RetryMax = cfg.Consumer.RetryMax
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// trim old dedup markers; envelope-keyed markers grow with traffic
	go func() {
		tick := time.NewTicker(12 * time.Hour)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				n, err := processed.DeleteBefore(ctx, time.Now().Add(-30*24*time.Hour))
				if err != nil {
					logger.Log.Warn("processed marker trim failed", zap.Error(err))
				} else if n > 0 {
					logger.Log.Info("processed markers trimmed", zap.Int64("rows", n))
				}
			}
		}
	}()

	return r.Run(ctx)
}
