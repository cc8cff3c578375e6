package documents

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage"
)

// ExpiryJob flips active documents past their expiry date to expired.
type ExpiryJob struct {
	repo    storage.DocumentRepository
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewExpiryJob creates the expiry job.
func NewExpiryJob(repo storage.DocumentRepository, logger *observability.Logger, metrics *observability.Metrics) *ExpiryJob {
	return &ExpiryJob{repo: repo, logger: logger, metrics: metrics}
}

// Run performs one expiry pass.
func (j *ExpiryJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.repo.ExpireDocuments(ctx, time.Now())
	if err != nil {
		j.logger.WithError(err).Error("document expiry pass failed")
		return
	}
	if n > 0 {
		j.logger.WithField("expired", n).Info("documents expired")
		if j.metrics != nil {
			j.metrics.DocumentsExpiredTotal.Add(float64(n))
		}
	}
}

// Schedule registers the job to run hourly and returns the started
// scheduler; callers stop it during shutdown.
func (j *ExpiryJob) Schedule() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddJob("@hourly", j); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
