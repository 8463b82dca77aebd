package workflow

import (
	"context"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ContingencyQueue captures failed receipt pushes and retries them on a
// minute ticker. One record's failure never blocks the others.
type ContingencyQueue struct {
	logger   *logrus.Logger
	receipts ReceiptIssuer
	interval time.Duration
}

func NewContingencyQueue(receipts ReceiptIssuer) *ContingencyQueue {
	return &ContingencyQueue{
		logger:   config.GetLogger(),
		receipts: receipts,
		interval: time.Minute,
	}
}

// RegisterFailure persists a failed receipt push for later retry.
func (c *ContingencyQueue) RegisterFailure(ctx context.Context, codeGen string, statusId int, detail string) error {
	record, err := models.CreateContingency(ctx, codeGen, statusId, detail)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"module":        "workflow",
		"funcName":      "RegisterFailure",
		"codeGen":       codeGen,
		"contingencyId": record.ID,
	}).Info("receipt push captured for contingency retry")
	return nil
}

// ResendPending retries every unresolved contingency record once.
func (c *ContingencyQueue) ResendPending(ctx context.Context) {
	records, err := models.GetUnresolvedContingencies(ctx)
	if err != nil {
		config.LogError(c.logger, "workflow", "ResendPending", "", nil, err)
		return
	}
	for _, record := range records {
		c.resendOne(ctx, record)
	}
}

func (c *ContingencyQueue) resendOne(ctx context.Context, record *models.ContingencyTransaction) {
	now := utils.Now()
	docCode, err := c.receipts.Issue(ctx, record.CodeGen)
	if err != nil {
		if aerr := models.RecordContingencyAttempt(ctx, record.ID, err.Error(), now); aerr != nil {
			config.LogError(c.logger, "workflow", "resendOne", record.CodeGen, record.ID, aerr)
		}
		return
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.SetShipmentExcaliburDocCode(tx, record.CodeGen, docCode); err != nil {
			return err
		}
		return models.ResolveContingency(tx, record.ID, now)
	})
	if err != nil {
		config.LogError(c.logger, "workflow", "resendOne", record.CodeGen, record.ID, err)
		return
	}
	c.logger.WithFields(logrus.Fields{
		"module":        "workflow",
		"funcName":      "resendOne",
		"codeGen":       record.CodeGen,
		"contingencyId": record.ID,
		"retryCount":    record.RetryCount + 1,
	}).Info("contingency receipt resolved")
}

// Run sweeps pending records every interval until ctx is cancelled.
func (c *ContingencyQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one pass under a best-effort distributed lock so only one
// instance retries at a time. Redis being down degrades to local-only
// locking, never to a stopped sweeper.
func (c *ContingencyQueue) sweep(ctx context.Context) {
	sweepCtx := utils.SetCorrelationIdInContext(ctx, uuid.NewString())

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(sweepCtx, "lock:contingency-sweep", 55*time.Second, nil)
		if err == redislock.ErrNotObtained {
			return
		}
		if err == nil {
			defer lock.Release(sweepCtx)
		}
	}

	c.ResendPending(sweepCtx)
}
