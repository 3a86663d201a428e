// Package processor owns one packaging task from pickup to a terminal status.
package processor

import (
	"context"
	"fmt"
	"time"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/archive"
	"github.com/freundallein/packer/chassis/metrics"
	"github.com/freundallein/packer/chassis/oms"
	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/chassis/tasklog"
	"github.com/freundallein/packer/chassis/uidriver"
	"github.com/freundallein/packer/packing"
	"github.com/freundallein/packer/timeout"
)

const msgNotUploaded = "Process Completed but document uploading failed"

// Result - how one attempt ended. Err carries the automation failure of a
// require_manual_shipment attempt or the cause of a failed one; it is set
// only after everything was persisted.
type Result struct {
	TaskID     int64
	Status     storage.Status
	Err        error
	CleanupErr error
	Notified   bool
}

// Processor - ...
type Processor struct {
	Repo       storage.TaskRepository
	Sessions   uidriver.Factory
	OMS        oms.Client
	Dispatcher packing.Dispatcher
	Supervisor timeout.Supervisor
	// Archive is optional.
	Archive archive.Archiver

	now func() time.Time
}

func (p *Processor) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Process runs one attempt. It never panics and never returns without a
// terminal status write attempt.
func (p *Processor) Process(ctx context.Context, task *storage.Task) (res Result) {
	res.TaskID = task.ID
	trace := tasklog.New()
	defer func() {
		if r := recover(); r != nil {
			res = p.fail(ctx, task, trace, fmt.Errorf("panic: %v", r))
		}
	}()

	trace.Add("Process started at %s.", tasklog.Stamp(p.clock()))
	err := p.Repo.WriteStatus(ctx, task.ID, storage.Fields{
		storage.ColStatus: storage.PROCESSING,
		storage.ColLog:    trace.String(),
	})
	if err != nil {
		return p.fail(ctx, task, trace, err)
	}
	log.WithFields(log.Fields{
		"event":  "task_processing",
		"taskID": task.ID,
		"cron":   task.Cron,
		"order":  task.OrderName,
	}).Info("task picked up")

	order := oms.Order{Ref: task.ID, PickingID: task.PickingID}
	holder := &sessionHolder{}
	var doc []byte
	started := p.clock()
	out := p.Supervisor.Run(ctx,
		func(ctx context.Context) error {
			d, err := p.automate(ctx, task, holder, trace)
			doc = d
			return err
		},
		holder.TerminateSession,
		func(ctx context.Context) error {
			return p.OMS.MarkManualShipment(ctx, order, trace.String())
		},
	)
	outcome := "succeeded"
	if out.Failed() {
		outcome = "failed"
		if out.TimedOut {
			outcome = "timed_out"
		}
	}
	metrics.WorkflowDuration.WithLabelValues(outcome).Observe(p.clock().Sub(started).Seconds())

	if out.Failed() {
		return p.requireManual(ctx, task, trace, out)
	}
	return p.complete(ctx, task, trace, order, doc)
}

// automate is the supervised workflow: line data check, login, then the packing procedures.
func (p *Processor) automate(ctx context.Context, task *storage.Task, holder *sessionHolder, trace *tasklog.Log) ([]byte, error) {
	lines, err := packing.ParseLines(task.LineData)
	if err != nil {
		trace.Add("Invalid line data: %v", err)
		return nil, err
	}
	sess, err := p.Sessions.Open(ctx)
	if err != nil {
		trace.Add("Could not open UI session: %v", err)
		return nil, err
	}
	if !holder.attach(sess) {
		return nil, uidriver.ErrSessionClosed
	}
	drv := bound{Session: sess, holder: holder}
	if err := drv.Login(ctx); err != nil {
		trace.Add("Login Failed with error: %v", err)
		return nil, err
	}
	trace.Add("Login Successful")
	return p.Dispatcher.Run(ctx, drv, packing.Order{
		Name:     task.OrderName,
		Strategy: packing.Strategy(task.OperationType),
		Lines:    lines,
		Dims: uidriver.Dimensions{
			Weight: task.Weight,
			Length: task.Length,
			Width:  task.Width,
			Height: task.Height,
		},
	}, trace)
}

func (p *Processor) requireManual(ctx context.Context, task *storage.Task, trace *tasklog.Log, out timeout.Outcome) Result {
	trace.Add("%s", out.Detail())
	trace.Add("Process Error: %s %s. Completed at %s", out.Error(), out.Message(), tasklog.Stamp(p.clock()))
	log.WithFields(log.Fields{
		"event":    "automation_failed",
		"taskID":   task.ID,
		"cron":     task.Cron,
		"timedOut": out.TimedOut,
	}).Warn(out.Error())

	err := p.Repo.WriteStatus(ctx, task.ID, storage.Fields{
		storage.ColStatus: storage.REQUIRE_MANUAL_SHIPMENT,
		storage.ColError:  out.Error(),
		storage.ColMsg:    out.Message(),
		storage.ColLog:    trace.String(),
	})
	if err != nil {
		return p.fail(ctx, task, trace, err)
	}
	notified, err := p.notify(ctx, task, trace, oms.StatusRequireManualShipment)
	if err != nil {
		return p.fail(ctx, task, trace, err)
	}
	metrics.TasksProcessed.WithLabelValues(string(storage.REQUIRE_MANUAL_SHIPMENT)).Inc()
	return Result{
		TaskID:     task.ID,
		Status:     storage.REQUIRE_MANUAL_SHIPMENT,
		Err:        out.Cause,
		CleanupErr: out.Cleanup,
		Notified:   notified,
	}
}

func (p *Processor) complete(ctx context.Context, task *storage.Task, trace *tasklog.Log, order oms.Order, doc []byte) Result {
	trace.Add("Automation completed at %s", tasklog.Stamp(p.clock()))

	status, hook, msg := storage.COMPLETED, oms.StatusDocGenerated, timeout.MsgCompleted
	if err := p.OMS.UploadDocument(ctx, order, doc, trace.String()); err != nil {
		status, hook, msg = storage.COMPLETED_NO_UPLOAD, oms.StatusDocGeneratedNotUploaded, msgNotUploaded
		trace.Add("%v", err)
		log.WithFields(log.Fields{
			"event":  "upload_failed",
			"taskID": task.ID,
			"cron":   task.Cron,
		}).Warn(err)
	} else {
		trace.Add("File Uploaded Successfully")
		p.archive(ctx, task, trace, doc)
	}
	trace.Add("Process Complete.")

	err := p.Repo.WriteStatus(ctx, task.ID, storage.Fields{
		storage.ColStatus: status,
		storage.ColMsg:    msg,
		storage.ColLog:    trace.String(),
	})
	if err != nil {
		return p.fail(ctx, task, trace, err)
	}
	notified, err := p.notify(ctx, task, trace, hook)
	if err != nil {
		return p.fail(ctx, task, trace, err)
	}
	log.WithFields(log.Fields{
		"event":  "task_completed",
		"taskID": task.ID,
		"cron":   task.Cron,
		"status": status,
	}).Info("task completed")
	metrics.TasksProcessed.WithLabelValues(string(status)).Inc()
	return Result{TaskID: task.ID, Status: status, Notified: notified}
}

func (p *Processor) archive(ctx context.Context, task *storage.Task, trace *tasklog.Log, doc []byte) {
	if p.Archive == nil {
		return
	}
	key, err := p.Archive.Store(ctx, task.OrderName, doc)
	if err != nil {
		trace.Add("Error in archiving document %v", err)
		log.WithFields(log.Fields{
			"event":  "archive_failed",
			"taskID": task.ID,
		}).Warn(err)
		return
	}
	trace.Add("Document archived as %s", key)
}

// notify pushes the webhook and persists its outcome; only the write can fail.
func (p *Processor) notify(ctx context.Context, task *storage.Task, trace *tasklog.Log, status string) (bool, error) {
	ok, text := p.OMS.NotifyWebhook(ctx, oms.WebhookPayload{
		OrderRef:  task.ID,
		RPAStatus: false,
		Status:    status,
		Log:       trace.String(),
	})
	if !ok {
		metrics.WebhookFailures.Inc()
		log.WithFields(log.Fields{
			"event":  "webhook_failed",
			"taskID": task.ID,
		}).Warn(text)
	}
	return ok, p.Repo.WriteStatus(ctx, task.ID, storage.Fields{
		storage.ColSyncedToOMS: ok,
		storage.ColOMSResponse: text,
	})
}

// fail records an attempt that could not reach any other terminal status.
func (p *Processor) fail(ctx context.Context, task *storage.Task, trace *tasklog.Log, cause error) Result {
	trace.Add("Process failed: %v", cause)
	log.WithFields(log.Fields{
		"event":  "task_failed",
		"taskID": task.ID,
		"cron":   task.Cron,
	}).Error(cause)
	err := p.Repo.WriteStatus(context.WithoutCancel(ctx), task.ID, storage.Fields{
		storage.ColStatus:       storage.FAILED,
		storage.ColProcessError: cause.Error(),
		storage.ColLog:          trace.String(),
	})
	if err != nil {
		log.WithFields(log.Fields{
			"event":  "status_write_failed",
			"taskID": task.ID,
		}).Error(err)
	}
	metrics.TasksProcessed.WithLabelValues(string(storage.FAILED)).Inc()
	return Result{TaskID: task.ID, Status: storage.FAILED, Err: cause}
}
