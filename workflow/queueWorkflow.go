package workflow

import (
	"context"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// QueueAllocator manages the per-truck-type waiting queues outside the
// terminal. The count-then-insert is serialized per type with an advisory
// lock so concurrent calls never overshoot the cap.
type QueueAllocator struct {
	logger *logrus.Logger
	status *StatusOrchestrator
}

func NewQueueAllocator(status *StatusOrchestrator) *QueueAllocator {
	return &QueueAllocator{
		logger: config.GetLogger(),
		status: status,
	}
}

// CallSlot occupies one waiting slot for a truck type.
func (q *QueueAllocator) CallSlot(ctx context.Context, truckType string) (*models.QueueSlot, error) {
	t := models.TruckType(truckType)
	if !models.IsValidTruckType(t) {
		return nil, utils.Errf(utils.KindInvalidType, "unknown truck type %q", truckType)
	}
	cap := models.GetQueueCap(ctx, t)

	db := config.GetDB()
	var slot *models.QueueSlot
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireQueueLock(tx, string(t)); err != nil {
			return err
		}
		defer ReleaseQueueLock(tx, string(t))

		count, err := models.CountWaitingSlots(tx, t)
		if err != nil {
			return err
		}
		if count >= int64(cap) {
			return utils.Errf(utils.KindCapacityExceeded,
				"queue for truck type %s is full (%d/%d)", truckType, count, cap)
		}
		slot = &models.QueueSlot{
			TruckType: string(t),
			Status:    models.QueueSlotWaiting,
			EntryTime: utils.Now(),
		}
		return tx.Create(slot).Error
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// SendShipment calls a shipment forward: binds it to the longest-waiting
// slot of its truck type, flips the slot to sent and records the summoned
// status (which updates the gate system).
func (q *QueueAllocator) SendShipment(ctx context.Context, codeGen string, observation string) (*models.QueueSlot, error) {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen, "Vehicle")
	if err != nil {
		return nil, err
	}
	if shipment.Vehicle == nil {
		return nil, utils.Errf(utils.KindValidationFailed, "shipment %s has no vehicle assigned", codeGen)
	}
	t := models.TruckType(shipment.Vehicle.TruckType)
	if !models.IsValidTruckType(t) {
		return nil, utils.Errf(utils.KindInvalidType,
			"shipment %s vehicle carries unknown truck type %q", codeGen, shipment.Vehicle.TruckType)
	}

	db := config.GetDB()
	last, err := models.GetLastStatus(db.WithContext(ctx), shipment.ID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.PredefinedStatusId >= models.StatusSummoned {
		return nil, utils.Errf(utils.KindInvalidState,
			"shipment %s was already summoned (status %d)", codeGen, last.PredefinedStatusId)
	}

	var slot *models.QueueSlot
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireQueueLock(tx, string(t)); err != nil {
			return err
		}
		defer ReleaseQueueLock(tx, string(t))

		var err error
		slot, err = models.OldestWaitingSlot(tx, t)
		if err != nil {
			return err
		}
		if slot == nil {
			return utils.Errf(utils.KindNoSlotAvailable, "no waiting slot for truck type %s", t)
		}
		slot.Status = models.QueueSlotSent
		slot.ShipmentCodeGen = &shipment.CodeGen
		return tx.Save(slot).Error
	})
	if err != nil {
		return nil, err
	}

	if _, err := q.status.AddStatus(ctx, codeGen, models.StatusSummoned, observation); err != nil {
		config.LogError(q.logger, "workflow", "SendShipment", codeGen, slot.ID, err)
		return nil, err
	}
	return slot, nil
}

// ReleaseSlot frees the longest-waiting slot of a truck type.
func (q *QueueAllocator) ReleaseSlot(ctx context.Context, truckType string) error {
	_, err := q.ReleaseMultiple(ctx, truckType, 1)
	return err
}

// ReleaseMultiple frees the n longest-waiting slots of a truck type.
// Fails without releasing anything when fewer than n slots are occupied.
func (q *QueueAllocator) ReleaseMultiple(ctx context.Context, truckType string, n int) (int, error) {
	t := models.TruckType(truckType)
	if !models.IsValidTruckType(t) {
		return 0, utils.Errf(utils.KindInvalidType, "unknown truck type %q", truckType)
	}
	if n <= 0 {
		return 0, utils.Errf(utils.KindValidationFailed, "release quantity must be positive, got %d", n)
	}

	db := config.GetDB()
	released := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireQueueLock(tx, string(t)); err != nil {
			return err
		}
		defer ReleaseQueueLock(tx, string(t))

		slots, err := models.OldestWaitingSlots(tx, t, n)
		if err != nil {
			return err
		}
		if len(slots) < n {
			return utils.Errf(utils.KindInsufficientSlots,
				"cannot release %d slots for truck type %s, only %d occupied", n, truckType, len(slots))
		}
		for _, slot := range slots {
			if err := tx.Delete(slot).Error; err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// AvailableSlots returns the free slot count for a truck type.
func (q *QueueAllocator) AvailableSlots(ctx context.Context, truckType string) (int, error) {
	t := models.TruckType(truckType)
	if !models.IsValidTruckType(t) {
		return 0, utils.Errf(utils.KindInvalidType, "unknown truck type %q", truckType)
	}
	db := config.GetDB()
	count, err := models.CountWaitingSlots(db.WithContext(ctx), t)
	if err != nil {
		return 0, err
	}
	available := models.GetQueueCap(ctx, t) - int(count)
	if available < 0 {
		available = 0
	}
	return available, nil
}

// AvailableSlotsAllTypes returns the free slot count per truck type.
func (q *QueueAllocator) AvailableSlotsAllTypes(ctx context.Context) (map[string]int, error) {
	result := make(map[string]int, 3)
	for _, t := range []models.TruckType{models.TruckTypeDump, models.TruckTypeFlatbed, models.TruckTypeTanker} {
		available, err := q.AvailableSlots(ctx, string(t))
		if err != nil {
			return nil, err
		}
		result[string(t)] = available
	}
	return result, nil
}
