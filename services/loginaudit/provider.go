package loginaudit

import (
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideLoginAuditService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	service := NewService(db, cfg, logger)

	if cfg.LoginAudit.CleanupInterval > 0 {
		service.StartCleanupWorker()
	}

	return service
}

var Module = fx.Options(
	fx.Provide(ProvideLoginAuditService),
)
