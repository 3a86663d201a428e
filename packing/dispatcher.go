// Package packing picks and runs the packing procedures an order needs.
package packing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freundallein/packer/chassis/tasklog"
	"github.com/freundallein/packer/chassis/uidriver"
)

// DefaultSettle - pause before the proof of pack is downloaded
const DefaultSettle = 3 * time.Second

var (
	// ErrUnknownStrategy - the order declares a type no procedure serves
	ErrUnknownStrategy = errors.New("unknown packing strategy")
	// ErrNoLines - the strategy has no line data to pack
	ErrNoLines = errors.New("no lines for strategy")
	// ErrUnsupportedMix - mixed order with fewer than two sub-strategies present
	ErrUnsupportedMix = errors.New("mixed order needs at least two sub-strategies")
	// ErrOverPacked - more units entered than ordered
	ErrOverPacked = errors.New("entered quantity exceeds ordered quantity")
)

// EntryError - a line could not be entered
type EntryError struct {
	Product string
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("error in adding product %s: %v", e.Product, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// BoxError - a box could not be closed or shipped
type BoxError struct {
	Package string
	Err     error
}

func (e *BoxError) Error() string {
	return fmt.Sprintf("error in closing the package %s: %v", e.Package, e.Err)
}

func (e *BoxError) Unwrap() error { return e.Err }

// Driver - UI surface the procedures need
type Driver interface {
	LocateOrder(ctx context.Context, name string) error
	PackAll(ctx context.Context, dims uidriver.Dimensions) error
	ShipInSeparateBoxes(ctx context.Context) error
	EnterLine(ctx context.Context, product string, quantity int) error
	CloseBox(ctx context.Context) error
	FinalizeShip(ctx context.Context) error
	DownloadProof(ctx context.Context) ([]byte, error)
	TerminateSession()
}

// Order - what the dispatcher needs to know about a task
type Order struct {
	Name     string
	Strategy Strategy
	Lines    Lines
	Dims     uidriver.Dimensions
}

// Dispatcher - ...
type Dispatcher struct {
	Settle time.Duration
}

// Run packs the order and returns the downloaded proof of pack. The session
// is terminated before Run returns, whatever the outcome.
func (d Dispatcher) Run(ctx context.Context, drv Driver, order Order, log *tasklog.Log) ([]byte, error) {
	defer drv.TerminateSession()

	if err := drv.LocateOrder(ctx, order.Name); err != nil {
		switch {
		case errors.Is(err, uidriver.ErrOrderNotFound):
			log.Add("Order not found")
		case errors.Is(err, uidriver.ErrMultipleOrders):
			log.Add("Multiple orders found")
		}
		return nil, err
	}
	log.Add("Order found.")
	log.Add("Started for Process Type: %s", order.Strategy)

	if err := d.dispatch(ctx, drv, order, log); err != nil {
		return nil, err
	}
	log.Add("Done for Process Type: %s", order.Strategy)

	if err := sleep(ctx, d.settle()); err != nil {
		return nil, err
	}
	doc, err := drv.DownloadProof(ctx)
	if err != nil {
		log.Add("Error in Downloading document: %v", err)
		return nil, err
	}
	log.Add("Document Downloaded")
	return doc, nil
}

func (d Dispatcher) settle() time.Duration {
	if d.Settle < 0 {
		return 0
	}
	if d.Settle == 0 {
		return DefaultSettle
	}
	return d.Settle
}

func (d Dispatcher) dispatch(ctx context.Context, drv Driver, order Order, log *tasklog.Log) error {
	lines := order.Lines
	switch order.Strategy {
	case ALL:
		if err := drv.PackAll(ctx, order.Dims); err != nil {
			log.Add("Pack all failed: %v", err)
			return err
		}
		log.Add("Packed all items in one box and shipped")
		return nil
	case SEPARATE_BOX:
		if err := drv.ShipInSeparateBoxes(ctx); err != nil {
			if errors.Is(err, uidriver.ErrShipDisabled) {
				log.Add("Ship Button not enabled.")
			}
			log.Add("Couldn't ship in separate boxes: %v", err)
			return err
		}
		log.Add("Shipped.")
		return nil
	case SEPARATE_MULTI_BOX:
		return packPackages(ctx, drv, order.Strategy, lines.SeparateMultiBox, true, log)
	case SAME_BOX:
		return packPackages(ctx, drv, order.Strategy, lines.SameBox, true, log)
	case SPLIT_MULTI_BOX:
		return packProducts(ctx, drv, order.Strategy, lines.SplitMultiBox, true, log)
	case MIXED:
		steps, err := mixedPlan(lines)
		if err != nil {
			log.Add("Mixed order cannot be packed: %v", err)
			return err
		}
		for _, step := range steps {
			log.Add("Started for Sub-process Type: %s", step.strategy)
			if err := step.run(ctx, drv, lines, log); err != nil {
				return err
			}
			log.Add("Done for Sub-process Type: %s", step.strategy)
		}
		return nil
	default:
		log.Add("Unknown Process Type: %s", order.Strategy)
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, order.Strategy)
	}
}

type step struct {
	strategy Strategy
	finalize bool
}

func (s step) run(ctx context.Context, drv Driver, lines Lines, log *tasklog.Log) error {
	switch s.strategy {
	case SEPARATE_MULTI_BOX:
		return packPackages(ctx, drv, s.strategy, lines.SeparateMultiBox, s.finalize, log)
	case SAME_BOX:
		return packPackages(ctx, drv, s.strategy, lines.SameBox, s.finalize, log)
	default:
		return packProducts(ctx, drv, s.strategy, lines.SplitMultiBox, s.finalize, log)
	}
}

// mixedPlan orders the present sub-strategies. Only the last one finalizes,
// except for the separate multi box and same box pair, where both do.
func mixedPlan(lines Lines) ([]step, error) {
	var steps []step
	if len(lines.SeparateMultiBox) > 0 {
		steps = append(steps, step{strategy: SEPARATE_MULTI_BOX})
	}
	if len(lines.SameBox) > 0 {
		steps = append(steps, step{strategy: SAME_BOX})
	}
	if len(lines.SplitMultiBox) > 0 {
		steps = append(steps, step{strategy: SPLIT_MULTI_BOX})
	}
	if len(steps) < 2 {
		return nil, ErrUnsupportedMix
	}
	if len(steps) == 2 && steps[0].strategy == SEPARATE_MULTI_BOX && steps[1].strategy == SAME_BOX {
		steps[0].finalize = true
	}
	steps[len(steps)-1].finalize = true
	return steps, nil
}

type action int

const (
	closeBox action = iota
	finalizeShip
)

// nextAction - box closure after entering a package. finalize tells whether
// this procedure may complete the shipment. The over-packed check guards the
// rule itself; Run never enters more than the lines it totalled.
func nextAction(finalize bool, ordered, entered int) (action, error) {
	if entered > ordered {
		return closeBox, fmt.Errorf("%w: entered %d of %d", ErrOverPacked, entered, ordered)
	}
	if finalize && entered == ordered {
		return finalizeShip, nil
	}
	return closeBox, nil
}

func closeWith(ctx context.Context, drv Driver, act action) error {
	if act == finalizeShip {
		return drv.FinalizeShip(ctx)
	}
	return drv.CloseBox(ctx)
}

// packPackages serves both package strategies; they differ only by finalize.
func packPackages(ctx context.Context, drv Driver, strategy Strategy, pkgs []Package, finalize bool, log *tasklog.Log) error {
	if len(pkgs) == 0 {
		log.Add("No lines for %s", strategy)
		return fmt.Errorf("%w: %s", ErrNoLines, strategy)
	}
	ordered := packagesTotal(pkgs)
	entered := 0
	for _, pkg := range pkgs {
		log.Add("Started package: %s", pkg)
		for _, line := range pkg.Lines {
			log.Add("Adding Product: %s with quantity: %d", line.Product, line.Quantity)
			if err := drv.EnterLine(ctx, line.Product, int(line.Quantity)); err != nil {
				log.Add("Error in adding product %s %v", line.Product, err)
				return &EntryError{Product: line.Product, Err: err}
			}
			entered += int(line.Quantity)
		}
		log.Add("Created package: %s", pkg)
		if err := closePackage(ctx, drv, finalize, ordered, entered); err != nil {
			log.Add("Error in closing the package: %s", pkg)
			return &BoxError{Package: pkg.String(), Err: err}
		}
		log.Add("Closed package: %s", pkg)
	}
	return nil
}

func packProducts(ctx context.Context, drv Driver, strategy Strategy, products []PackingLine, finalize bool, log *tasklog.Log) error {
	if len(products) == 0 {
		log.Add("No lines for %s", strategy)
		return fmt.Errorf("%w: %s", ErrNoLines, strategy)
	}
	ordered := linesTotal(products)
	entered := 0
	for _, line := range products {
		log.Add("Adding Product: %s with quantity: %d", line.Product, line.Quantity)
		if err := drv.EnterLine(ctx, line.Product, int(line.Quantity)); err != nil {
			log.Add("Error in adding product %s %v", line.Product, err)
			return &EntryError{Product: line.Product, Err: err}
		}
		entered += int(line.Quantity)
		log.Add("Created package for product: %s", line.Product)
		if err := closePackage(ctx, drv, finalize, ordered, entered); err != nil {
			log.Add("Error in closing the package: %s", line.Product)
			return &BoxError{Package: line.Product, Err: err}
		}
		log.Add("Closed package for product: %s", line.Product)
	}
	return nil
}

func closePackage(ctx context.Context, drv Driver, finalize bool, ordered, entered int) error {
	act, err := nextAction(finalize, ordered, entered)
	if err != nil {
		return err
	}
	return closeWith(ctx, drv, act)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
