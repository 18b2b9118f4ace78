package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interview_room/internal/models"
	"interview_room/internal/service"
)

// RecordingReporter 由 service.RecordingService 實作
type RecordingReporter interface {
	ReportProgress(ctx context.Context, recordingID uuid.UUID, percent int) (*models.Recording, error)
	ReportOutcome(ctx context.Context, recordingID uuid.UUID, outcome service.Outcome) (*models.Recording, error)
}

type progressMessage struct {
	RecordingID uuid.UUID `json:"recording_id"`
	Percent     int       `json:"percent"`
}

type outcomeMessage struct {
	RecordingID uuid.UUID              `json:"recording_id"`
	Status      models.RecordingStatus `json:"status"`
	StorageKey  string                 `json:"storage_key"`
	Format      string                 `json:"format,omitempty"`
	Quality     string                 `json:"quality,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}

// PipelineConsumer 消費錄影管線回報的進度與結果
type PipelineConsumer struct {
	transport  Transport
	subjects   Subjects
	recordings RecordingReporter
	log        *zap.Logger
}

func NewPipelineConsumer(t Transport, s Subjects, recordings RecordingReporter, logger *zap.Logger) *PipelineConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineConsumer{transport: t, subjects: s, recordings: recordings, log: logger}
}

// Start 訂閱兩個 subject，ctx 結束時自動退訂
func (c *PipelineConsumer) Start(ctx context.Context) ([]io.Closer, error) {
	progress, err := c.transport.Subscribe(ctx, c.subjects.PipelineProgress(), "interview-pipeline-progress", c.handleProgress)
	if err != nil {
		return nil, err
	}
	outcome, err := c.transport.Subscribe(ctx, c.subjects.PipelineOutcome(), "interview-pipeline-outcome", c.handleOutcome)
	if err != nil {
		progress.Close()
		return nil, err
	}
	return []io.Closer{progress, outcome}, nil
}

func (c *PipelineConsumer) handleProgress(ctx context.Context, data []byte) error {
	var msg progressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("drop malformed progress message", zap.Error(err))
		return nil
	}
	_, err := c.recordings.ReportProgress(ctx, msg.RecordingID, msg.Percent)
	return c.settle("progress", msg.RecordingID, err)
}

func (c *PipelineConsumer) handleOutcome(ctx context.Context, data []byte) error {
	var msg outcomeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("drop malformed outcome message", zap.Error(err))
		return nil
	}
	_, err := c.recordings.ReportOutcome(ctx, msg.RecordingID, service.Outcome{
		Status:     msg.Status,
		StorageKey: msg.StorageKey,
		Format:     msg.Format,
		Quality:    msg.Quality,
		Details:    msg.Details,
		Reason:     msg.Reason,
	})
	return c.settle("outcome", msg.RecordingID, err)
}

// settle 永遠不會成功的訊息直接 ack，只有暫時性錯誤才讓它重送
func (c *PipelineConsumer) settle(kind string, recordingID uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidArgument) || errors.Is(err, service.ErrInvalidTransition) {
		c.log.Warn("drop pipeline message",
			zap.String("kind", kind),
			zap.String("recording_id", recordingID.String()),
			zap.Error(err))
		return nil
	}
	return err
}
