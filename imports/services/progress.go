package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProgressSnapshot is what observers see between the periodic counter
// commits. The database row remains the source of truth; this is best-effort.
type ProgressSnapshot struct {
	RunID           string `json:"run_id"`
	TotalRows       int    `json:"total_rows"`
	ProcessedRows   int    `json:"processed_rows"`
	SuccessRows     int    `json:"success_rows"`
	ErrorRows       int    `json:"error_rows"`
	ProgressPercent int    `json:"progress_percent"`
}

// ProgressPublisher pushes counter snapshots to Redis pub/sub for the
// notification transport to fan out. Publishes are rate-capped so a fast
// worker on a small file cannot flood the channel.
type ProgressPublisher struct {
	client  *redis.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

func NewProgressPublisher(client *redis.Client, logger *zap.Logger) *ProgressPublisher {
	return &ProgressPublisher{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(5), 10), // 5 publishes/sec, small burst
	}
}

func ProgressChannel(runID uuid.UUID) string {
	return fmt.Sprintf("etl:runs:%s:progress", runID)
}

// Publish sends a snapshot, dropping it when rate-limited or when Redis is
// unavailable. Progress delivery must never fail a run.
func (p *ProgressPublisher) Publish(ctx context.Context, runID uuid.UUID, snapshot ProgressSnapshot) {
	if p == nil || p.client == nil {
		return
	}
	if !p.limiter.Allow() {
		return
	}
	snapshot.RunID = runID.String()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, ProgressChannel(runID), payload).Err(); err != nil {
		p.logger.Warn("Failed to publish progress snapshot",
			zap.String("run_id", snapshot.RunID), zap.Error(err))
	}
}
