package storage

import (
	"time"
)

// Status - packaging order's possible states
type Status string

const (
	PENDING                 Status = "pending"
	PROCESSING              Status = "processing"
	COMPLETED               Status = "completed"
	COMPLETED_NO_UPLOAD     Status = "completed but document not uploaded"
	REQUIRE_MANUAL_SHIPMENT Status = "require_manual_shipment"
	FAILED                  Status = "failed"
)

// Terminal reports whether the status ends an attempt.
func (s Status) Terminal() bool {
	switch s {
	case COMPLETED, COMPLETED_NO_UPLOAD, REQUIRE_MANUAL_SHIPMENT, FAILED:
		return true
	default:
		return false
	}
}

// Task - one order to pack
type Task struct {
	ID            int64
	Cron          string
	Status        Status
	CreateDate    time.Time
	UpdatedDt     time.Time
	OrderName     string
	PickingID     int64
	OperationType string
	LineData      string
	Weight        float64
	Length        float64
	Width         float64
	Height        float64
	Error         string
	Msg           string
	ProcessError  string
	Log           string
	SyncedToOMS   bool
	OMSResponse   string
}

// Column - updatable task column
type Column string

const (
	ColStatus       Column = "status"
	ColError        Column = "error"
	ColMsg          Column = "msg"
	ColProcessError Column = "process_error"
	ColLog          Column = "log"
	ColSyncedToOMS  Column = "status_updated_to_oms"
	ColOMSResponse  Column = "oms_response_message"
)

var columns = map[Column]bool{
	ColStatus:       true,
	ColError:        true,
	ColMsg:          true,
	ColProcessError: true,
	ColLog:          true,
	ColSyncedToOMS:  true,
	ColOMSResponse:  true,
}

// Fields - partial update of a task, applied atomically
type Fields map[Column]interface{}

// Validate rejects unknown columns and mistyped values.
func (f Fields) Validate() error {
	if len(f) == 0 {
		return ErrEmptyUpdate
	}
	for col, val := range f {
		if !columns[col] {
			return &StoreError{Op: "validate", Err: ErrUnknownColumn, Column: string(col)}
		}
		switch col {
		case ColStatus:
			if _, ok := val.(Status); !ok {
				return &StoreError{Op: "validate", Err: ErrBadValue, Column: string(col)}
			}
		case ColSyncedToOMS:
			if _, ok := val.(bool); !ok {
				return &StoreError{Op: "validate", Err: ErrBadValue, Column: string(col)}
			}
		default:
			if _, ok := val.(string); !ok {
				return &StoreError{Op: "validate", Err: ErrBadValue, Column: string(col)}
			}
		}
	}
	return nil
}

// apply copies fields onto a task; Validate must have passed.
func (f Fields) apply(task *Task) {
	for col, val := range f {
		switch col {
		case ColStatus:
			task.Status = val.(Status)
		case ColError:
			task.Error = val.(string)
		case ColMsg:
			task.Msg = val.(string)
		case ColProcessError:
			task.ProcessError = val.(string)
		case ColLog:
			task.Log = val.(string)
		case ColSyncedToOMS:
			task.SyncedToOMS = val.(bool)
		case ColOMSResponse:
			task.OMSResponse = val.(string)
		}
	}
}
