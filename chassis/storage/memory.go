package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps tasks in process memory. It backs local runs
// (storage.dsn: memory://) and the engine's tests.
type MemoryRepository struct {
	mu     sync.Mutex
	seq    int64
	tasks  map[int64]*Task
	writes map[int64]int
	now    func() time.Time
}

// NewMemoryRepository - ...
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tasks:  make(map[int64]*Task),
		writes: make(map[int64]int),
		now:    time.Now,
	}
}

// Enqueue - ...
func (repo *MemoryRepository) Enqueue(_ context.Context, task *Task) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, t := range repo.tasks {
		if t.Cron == task.Cron && t.PickingID == task.PickingID && t.Status == PENDING {
			return 0, ErrDuplicateTask
		}
	}
	repo.seq++
	stored := *task
	stored.ID = repo.seq
	stored.Status = PENDING
	if stored.CreateDate.IsZero() {
		stored.CreateDate = repo.now()
	}
	stored.UpdatedDt = stored.CreateDate
	repo.tasks[stored.ID] = &stored
	return stored.ID, nil
}

// ClaimOldestPending - ...
func (repo *MemoryRepository) ClaimOldestPending(_ context.Context, cron string) (*Task, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var pending []*Task
	for _, t := range repo.tasks {
		if t.Cron != cron {
			continue
		}
		switch t.Status {
		case PROCESSING:
			return nil, ErrNoTask
		case PENDING:
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNoTask
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreateDate.Equal(pending[j].CreateDate) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreateDate.Before(pending[j].CreateDate)
	})
	task := pending[0]
	task.Status = PROCESSING
	task.UpdatedDt = repo.now()
	claimed := *task
	return &claimed, nil
}

// HasPending - ...
func (repo *MemoryRepository) HasPending(_ context.Context, cron string) (bool, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, t := range repo.tasks {
		if t.Cron == cron && t.Status == PENDING {
			return true, nil
		}
	}
	return false, nil
}

// PendingLanes - ...
func (repo *MemoryRepository) PendingLanes(_ context.Context) ([]string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	oldest := map[string]time.Time{}
	for _, t := range repo.tasks {
		if t.Status != PENDING {
			continue
		}
		if at, ok := oldest[t.Cron]; !ok || t.CreateDate.Before(at) {
			oldest[t.Cron] = t.CreateDate
		}
	}
	lanes := make([]string, 0, len(oldest))
	for cron := range oldest {
		lanes = append(lanes, cron)
	}
	sort.Slice(lanes, func(i, j int) bool {
		return oldest[lanes[i]].Before(oldest[lanes[j]])
	})
	return lanes, nil
}

// WriteStatus - ...
func (repo *MemoryRepository) WriteStatus(_ context.Context, id int64, fields Fields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	task, ok := repo.tasks[id]
	if !ok {
		return &StoreError{Op: "write_status", Err: ErrTaskNotFound}
	}
	fields.apply(task)
	task.UpdatedDt = repo.now()
	repo.writes[id]++
	return nil
}

// RepairStaleTasks - ...
func (repo *MemoryRepository) RepairStaleTasks(_ context.Context, timeout int, batchSize int) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	border := repo.now().Add(-time.Duration(timeout) * time.Second)
	repaired := 0
	for _, t := range repo.tasks {
		if repaired >= batchSize {
			break
		}
		if t.Status == PROCESSING && t.UpdatedDt.Before(border) {
			t.Status = FAILED
			t.ProcessError = "stale task"
			t.UpdatedDt = repo.now()
			repaired++
		}
	}
	return repaired, nil
}

// Get returns a copy of the stored task.
func (repo *MemoryRepository) Get(id int64) (Task, bool) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	task, ok := repo.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Writes reports how many WriteStatus calls hit the task.
func (repo *MemoryRepository) Writes(id int64) int {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return repo.writes[id]
}

// TotalWrites reports WriteStatus calls across all tasks.
func (repo *MemoryRepository) TotalWrites() int {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	total := 0
	for _, n := range repo.writes {
		total += n
	}
	return total
}
