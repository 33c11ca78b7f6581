package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"

	"github.com/paymocklabs/paymock/internal/config"
	"github.com/paymocklabs/paymock/internal/domain"
)

// Open connects the configured backend and migrates the schema. The default
// is an in-memory sqlite database, which makes every boot a clean slate;
// postgres and mysql DSNs are accepted for setups that want the state to
// survive restarts.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "", "sqlite":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = "file:paymock?mode=memory&cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, err
	}
	if err := db.Use(gormprometheus.New(gormprometheus.Config{DBName: "paymock"})); err != nil {
		log.Warn("gorm prometheus plugin", zap.Error(err))
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database ready", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

// Migrate creates the schema for every container.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Plan{},
		&domain.Coupon{},
		&domain.Customer{},
		&domain.Card{},
		&domain.Token{},
		&domain.Subscription{},
		&domain.SubscriptionItem{},
		&domain.Discount{},
		&domain.InvoiceItem{},
		&domain.Invoice{},
		&domain.LineItem{},
		&domain.Charge{},
		&domain.Event{},
		&domain.Webhook{},
	)
}
