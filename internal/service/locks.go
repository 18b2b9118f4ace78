package service

import (
	"sync"

	"github.com/google/uuid"
)

// roomLocks 每個房間一把互斥鎖，沒有跨房間的全域鎖
type roomLocks struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{rooms: make(map[uuid.UUID]*roomLock)}
}

// Lock 取得房間鎖，回傳的函式用來釋放
func (l *roomLocks) Lock(roomID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.rooms[roomID]
	if !ok {
		lock = &roomLock{}
		l.rooms[roomID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.rooms, roomID)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}
