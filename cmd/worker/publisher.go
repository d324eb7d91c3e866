package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccm-platform/carbon-admin/internal/config"
	"github.com/ccm-platform/carbon-admin/internal/db"
	"github.com/ccm-platform/carbon-admin/internal/kafka"
	"github.com/ccm-platform/carbon-admin/internal/logger"
	"github.com/ccm-platform/carbon-admin/internal/metrics"
	"github.com/ccm-platform/carbon-admin/internal/outbox"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run the outbox publisher",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		defer producer.Close()

		pub := outbox.NewPublisher(dbx, repository.NewOutboxRepository(dbx), producer)
		if cfg.Publisher.Interval > 0 {
			pub.Interval = cfg.Publisher.Interval
		}
		if cfg.Publisher.BatchSize > 0 {
			pub.BatchSize = cfg.Publisher.BatchSize
		}
		if cfg.Publisher.BaseBackoff > 0 {
			pub.BaseBackoff = cfg.Publisher.BaseBackoff
		}
		if cfg.Publisher.MaxBackoff > 0 {
			pub.MaxBackoff = cfg.Publisher.MaxBackoff
		}
		if cfg.Publisher.ArchiveAfter > 0 {
			pub.ArchiveAfter = cfg.Publisher.ArchiveAfter
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return pub.Run(ctx)
	},
}
