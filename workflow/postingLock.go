package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireQueueLock serializes the count-then-insert of one truck-type queue
// across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB (transaction) that will do the queue write.
func AcquireQueueLock(tx *gorm.DB, truckType string) error {
	lockName := fmt.Sprintf("queue:%s", truckType)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire queue lock for truck_type=%s", truckType)
	}
	return nil
}

func ReleaseQueueLock(tx *gorm.DB, truckType string) {
	lockName := fmt.Sprintf("queue:%s", truckType)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
