package migration

import (
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/config"
	customerdomain "github.com/newsmint/kiosk/internal/customer/domain"
	importerdomain "github.com/newsmint/kiosk/internal/importer/domain"
	sessiondomain "github.com/newsmint/kiosk/internal/session/domain"
	unlockdomain "github.com/newsmint/kiosk/internal/unlock/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql development setups migrate from the models.
		return conn.AutoMigrate(
			&sessiondomain.VisitorSession{},
			&billingdomain.BillingEvent{},
			&customerdomain.Customer{},
			&unlockdomain.UnlockGrant{},
			&importerdomain.ImportBatch{},
			&importerdomain.ImportError{},
		)
	}),
)
