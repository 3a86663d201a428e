// Package uidriver drives the fulfillment UI that packs and ships orders.
package uidriver

import (
	"context"
	"errors"
)

var (
	// ErrAuthentication - login rejected
	ErrAuthentication = errors.New("authentication failed")
	// ErrOrderNotFound - no order matches the name
	ErrOrderNotFound = errors.New("order not found")
	// ErrMultipleOrders - the name matches more than one order
	ErrMultipleOrders = errors.New("multiple orders found")
	// ErrShipDisabled - the ship action is not enabled for the order
	ErrShipDisabled = errors.New("ship action is not enabled")
	// ErrEntry - a line could not be entered
	ErrEntry = errors.New("line entry failed")
	// ErrBox - a box could not be closed or the shipment finalized
	ErrBox = errors.New("box action failed")
	// ErrDownload - proof of pack could not be downloaded
	ErrDownload = errors.New("document download failed")
	// ErrSessionClosed - the session was terminated
	ErrSessionClosed = errors.New("session closed")
)

// Dimensions - overall parcel hints of an order
type Dimensions struct {
	Weight float64
	Length float64
	Width  float64
	Height float64
}

// Session - one logged-in UI session; never reused across tasks
type Session interface {
	Login(ctx context.Context) error
	LocateOrder(ctx context.Context, name string) error
	// PackAll packs the whole order in one box and ships it.
	PackAll(ctx context.Context, dims Dimensions) error
	// ShipInSeparateBoxes ships every line in its own auto-assigned box.
	ShipInSeparateBoxes(ctx context.Context) error
	EnterLine(ctx context.Context, product string, quantity int) error
	CloseBox(ctx context.Context) error
	FinalizeShip(ctx context.Context) error
	DownloadProof(ctx context.Context) ([]byte, error)
	// TerminateSession tears the session down. It must be safe to call
	// while another call on the session is still in flight.
	TerminateSession()
}

// Factory - opens a fresh session per task
type Factory interface {
	Open(ctx context.Context) (Session, error)
}
