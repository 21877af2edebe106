package services

import (
	"time"

	"github.com/agromallas/mallas-app/utils"
)

// OrphanMonitor periodically runs the coordinator's orphan sweep so panels
// left Reserved/InProgress by a partial failure drift back to Free without
// operator intervention. The sweep is idempotent, so overlapping manual and
// scheduled runs are harmless.
type OrphanMonitor struct {
	Coordinator *Coordinator
	StopChan    chan struct{}
	Interval    time.Duration
}

func NewOrphanMonitor(co *Coordinator) *OrphanMonitor {
	return &OrphanMonitor{
		Coordinator: co,
		StopChan:    make(chan struct{}),
		Interval:    5 * time.Minute,
	}
}

func (om *OrphanMonitor) Start() {
	go func() {
		ticker := time.NewTicker(om.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				om.sweep()
			case <-om.StopChan:
				return
			}
		}
	}()
}

func (om *OrphanMonitor) Stop() {
	close(om.StopChan)
}

func (om *OrphanMonitor) sweep() {
	freed, err := om.Coordinator.ReconcileOrphans()
	if err != nil {
		utils.ErrorLogger.Printf("orphan sweep failed: %v", err)
		return
	}
	if freed > 0 {
		utils.InfoLogger.Printf("orphan sweep reconciled %d panel(s)", freed)
	}
}
