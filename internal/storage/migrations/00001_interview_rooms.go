package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"interview_room/internal/models"
)

func init() {
	goose.AddMigrationContext(upInterviewRooms, downInterviewRooms)
}

// 同一個邀請只能有一筆未結束的參與者，同一房間只能有一筆進行中的錄影
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_participants_active_invitation
		ON interview_participants (room_id, invitation_id)
		WHERE invitation_id IS NOT NULL AND status IN ('waiting', 'connected', 'disconnected')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_participants_active_user
		ON interview_participants (room_id, user_id)
		WHERE invitation_id IS NULL AND user_id <> '' AND status IN ('waiting', 'connected', 'disconnected')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_recordings_active
		ON interview_recordings (room_id)
		WHERE status IN ('recording', 'processing')`,
	`CREATE INDEX IF NOT EXISTS ix_invitations_pending_expiry
		ON interview_invitations (expires_at)
		WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS ix_participants_disconnected
		ON interview_participants (disconnected_at)
		WHERE status = 'disconnected'`,
}

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func upInterviewRooms(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&models.Room{},
		&models.Invitation{},
		&models.Participant{},
		&models.ChatMessage{},
		&models.Recording{},
	); err != nil {
		return err
	}

	for _, stmt := range partialIndexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func downInterviewRooms(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&models.Recording{},
		&models.ChatMessage{},
		&models.Participant{},
		&models.Invitation{},
		&models.Room{},
	)
}
