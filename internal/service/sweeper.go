package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper 定期過期邀請並結束超過寬限期的斷線參與者
type Sweeper struct {
	invitations  *InvitationService
	participants *ParticipantService
	interval     time.Duration
	log          *zap.Logger
}

func NewSweeper(invitations *InvitationService, participants *ParticipantService, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		invitations:  invitations,
		participants: participants,
		interval:     interval,
		log:          logger,
	}
}

// RunOnce 執行一輪清理，回傳過期的邀請數與逾時的參與者數
func (s *Sweeper) RunOnce(ctx context.Context) (expired, timedOut int64, err error) {
	expired, err = s.invitations.SweepExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	timedOut, err = s.participants.SweepDisconnected(ctx)
	if err != nil {
		return expired, 0, err
	}
	if expired > 0 || timedOut > 0 {
		s.log.Info("sweep finished", zap.Int64("invitations_expired", expired), zap.Int64("participants_timed_out", timedOut))
	}
	return expired, timedOut, nil
}

// Run 直到 ctx 取消前每個 interval 清理一次
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
