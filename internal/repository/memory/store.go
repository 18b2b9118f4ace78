// Package memory 提供不需要資料庫的 repository 實作，供測試與本機開發使用。
//
// 與 postgres 版本相同，唯一性與部分唯一索引都在這裡檢查。
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"interview_room/internal/models"
	"interview_room/internal/repository"
)

type store struct {
	mu *sync.Mutex
	// txMu 讓交易依序執行，效果等同鎖住房間列
	txMu *sync.Mutex
	// undo 只在交易中的 view 上有值，回滾時反向執行
	undo *[]func()

	rooms        map[uuid.UUID]models.Room
	invitations  map[uuid.UUID]models.Invitation
	participants map[uuid.UUID]models.Participant
	recordings   map[uuid.UUID]models.Recording
	messages     map[uuid.UUID]models.ChatMessage
}

// NewRepositories 建立共用同一份資料的 repository 集合
func NewRepositories() *repository.Repositories {
	s := &store{
		mu:           &sync.Mutex{},
		txMu:         &sync.Mutex{},
		rooms:        make(map[uuid.UUID]models.Room),
		invitations:  make(map[uuid.UUID]models.Invitation),
		participants: make(map[uuid.UUID]models.Participant),
		recordings:   make(map[uuid.UUID]models.Recording),
		messages:     make(map[uuid.UUID]models.ChatMessage),
	}
	return s.repositories()
}

func (s *store) repositories() *repository.Repositories {
	return &repository.Repositories{
		Room:        &roomRepository{s},
		Invitation:  &invitationRepository{s},
		Participant: &participantRepository{s},
		Recording:   &recordingRepository{s},
		ChatMessage: &chatMessageRepository{s},
		Tx:          roomTransactor{s},
	}
}

// put 寫入 map；在交易中會先記下舊值。呼叫端必須持有 mu
func put[T any](s *store, m map[uuid.UUID]T, id uuid.UUID, v T) {
	if s.undo != nil {
		old, existed := m[id]
		*s.undo = append(*s.undo, func() {
			if existed {
				m[id] = old
				return
			}
			delete(m, id)
		})
	}
	m[id] = v
}

type roomTransactor struct {
	s *store
}

// InRoom 同一份資料上的交易互斥；已在交易中時直接併入外層交易
func (t roomTransactor) InRoom(_ context.Context, roomID uuid.UUID, fn func(tx *repository.Repositories, room *models.Room) error) error {
	if t.s.undo != nil {
		room, err := t.room(roomID)
		if err != nil {
			return err
		}
		return fn(t.s.repositories(), room)
	}

	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	room, err := t.room(roomID)
	if err != nil {
		return err
	}
	var undo []func()
	view := *t.s
	view.undo = &undo
	if err := fn(view.repositories(), room); err != nil {
		t.s.mu.Lock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		t.s.mu.Unlock()
		return err
	}
	return nil
}

func (t roomTransactor) room(id uuid.UUID) (*models.Room, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	room, ok := t.s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &room, nil
}

func statusIn[S comparable](status S, from []S) bool {
	if len(from) == 0 {
		return true
	}
	for _, s := range from {
		if s == status {
			return true
		}
	}
	return false
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
