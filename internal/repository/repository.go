package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"interview_room/internal/models"
	"interview_room/internal/storage"
)

type Repositories struct {
	Room        RoomRepository
	Invitation  InvitationRepository
	Participant ParticipantRepository
	Recording   RecordingRepository
	ChatMessage ChatMessageRepository
	Tx          RoomTransactor
}

// RoomTransactor 在鎖住房間列的交易中執行 fn，fn 回傳錯誤時整筆回滾。
// 名額檢查與參與者寫入必須在同一個交易內，多個行程共用資料庫時才會互斥
type RoomTransactor interface {
	InRoom(ctx context.Context, roomID uuid.UUID, fn func(tx *Repositories, room *models.Room) error) error
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		Room:        NewRoomRepository(db),
		Invitation:  NewInvitationRepository(db),
		Participant: NewParticipantRepository(db),
		Recording:   NewRecordingRepository(db),
		ChatMessage: NewChatMessageRepository(db),
		Tx:          roomTransactor{db: db},
	}
}

type roomTransactor struct {
	db *storage.PostgresDB
}

// InRoom 以 SELECT ... FOR UPDATE 鎖住房間列；巢狀呼叫會變成 savepoint
func (t roomTransactor) InRoom(ctx context.Context, roomID uuid.UUID, fn func(tx *Repositories, room *models.Room) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).
			First(&room).Error
		if err != nil {
			return translate(err)
		}
		return fn(NewRepositories(&storage.PostgresDB{DB: tx}), &room)
	})
}
