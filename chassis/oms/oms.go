// Package oms writes packing results back to the order management system.
package oms

import (
	"context"
	"fmt"
)

// Webhook statuses reported to the OMS.
const (
	StatusDocGenerated            = "doc_generated"
	StatusDocGeneratedNotUploaded = "doc_generated_not_uploaded"
	StatusRequireManualShipment   = "require_manual_shipment"
)

// Order - OMS side identity of a task
type Order struct {
	// Ref - task id, the OMS keys its packaging log by it
	Ref       int64
	PickingID int64
}

// WebhookPayload - ...
type WebhookPayload struct {
	OrderRef  int64  `json:"order_ref"`
	RPAStatus bool   `json:"rpa_status"`
	Status    string `json:"status"`
	Log       string `json:"log"`
}

// Client - order management capability surface
type Client interface {
	// UploadDocument attaches the proof of pack and marks the packaging log completed.
	UploadDocument(ctx context.Context, order Order, doc []byte, log string) error
	// MarkManualShipment flags the order for manual handling.
	MarkManualShipment(ctx context.Context, order Order, log string) error
	// NotifyWebhook never fails; failures come back as ok=false.
	NotifyWebhook(ctx context.Context, payload WebhookPayload) (ok bool, response string)
}

// UploadError - document upload or record update failed
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("Error in uploading document: %v", e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

// SyncError - manual shipment flag could not be written
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string { return fmt.Sprintf("manual shipment update failed: %v", e.Err) }

func (e *SyncError) Unwrap() error { return e.Err }
