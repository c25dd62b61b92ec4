package database

import (
	"fmt"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect opens the database for the given driver ("postgres" or "sqlite")
func Connect(driver, dsn string) error {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db
	logger.Component("database").WithField("driver", driver).Info("Database connection established")
	return nil
}

// GormConfig is shared by the server, the migrator and test databases.
// TranslateError maps driver unique violations to gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
}

// ModelGroups lists every persisted model, grouped by area
func ModelGroups() map[string][]interface{} {
	return map[string][]interface{}{
		"identity": {
			&models.User{},
			&models.PushSubscription{},
			&models.AdminLog{},
		},
		"challenges": {
			&models.Challenge{},
			&models.Participant{},
			&models.LeaderboardEntry{},
		},
		"commerce": {
			&models.Payment{},
			&models.Subscription{},
			&models.SignalPlan{},
			&models.MentorshipPlan{},
			&models.PropFirmPackage{},
			&models.PropFirmService{},
		},
		"messaging": {
			&models.Chatbox{},
			&models.ChatMessage{},
			&models.ChatboxSubscriber{},
			&models.Notification{},
			&models.SupportTicket{},
			&models.SupportMessage{},
			&models.ServiceChatMessage{},
		},
		"content": {
			&models.SiteSettings{},
			&models.FooterSettings{},
			&models.YouTubeVideo{},
		},
	}
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate migrates every model group on db. A failing model is logged and
// skipped so one bad table does not block the rest.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	log := logger.Component("database")

	for _, group := range []string{"identity", "challenges", "commerce", "messaging", "content"} {
		for _, model := range ModelGroups()[group] {
			if err := db.AutoMigrate(model); err != nil {
				log.WithField("group", group).Warnf("migration issue for %T: %v", model, err)
			}
		}
	}

	log.Info("Database migrations completed")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
