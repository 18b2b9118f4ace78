package service

import (
	"errors"
	"fmt"

	"interview_room/internal/repository"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("invitation expired")
	ErrAlreadyResolved   = errors.New("invitation already resolved")
	ErrRoomFull          = errors.New("room is full")
	ErrExhaustedRetries  = errors.New("identifier generation exhausted retries")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyRecording  = errors.New("room is already recording")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// notFound 把 repository 的 ErrNotFound 轉成服務層錯誤，其他錯誤原樣往上傳
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
