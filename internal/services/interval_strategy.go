// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence intervals.
// Each interval (daily, weekly, monthly) has a stepper that computes the
// due date following a given one.

package services

import (
	"fmt"

	"expensetracker/internal/core"
)

// IntervalStepper is the strategy interface for advancing a recurrence.
type IntervalStepper interface {
	// Next returns the due date one interval after ref. start is the
	// definition's start date; steppers that anchor to it may use it.
	Next(ref, start core.Date) core.Date
}

// DailyStepper advances by one day.
type DailyStepper struct{}

func (DailyStepper) Next(ref, _ core.Date) core.Date {
	return ref.AddDays(1)
}

// WeeklyStepper advances by seven days.
type WeeklyStepper struct{}

func (WeeklyStepper) Next(ref, _ core.Date) core.Date {
	return ref.AddDays(7)
}

// MonthlyStepper advances one calendar month, landing on the start
// day-of-month or the last day of a shorter month.
type MonthlyStepper struct{}

func (MonthlyStepper) Next(ref, start core.Date) core.Date {
	return ref.AddMonthsAnchored(1, start.Day())
}

var intervalSteppers = map[core.Interval]IntervalStepper{
	core.Daily:   DailyStepper{},
	core.Weekly:  WeeklyStepper{},
	core.Monthly: MonthlyStepper{},
}

// StepperFor returns the stepper for an interval, or a *core.ConfigurationError
// when the interval is unknown.
func StepperFor(def core.RecurrenceDefinition) (IntervalStepper, error) {
	stepper, ok := intervalSteppers[def.Interval]
	if !ok {
		return nil, &core.ConfigurationError{
			DefinitionID: def.ID,
			Reason:       fmt.Sprintf("unknown interval %q", def.Interval),
		}
	}
	return stepper, nil
}

// DueDates lists every due date of def that falls on or before today and
// has not been applied yet, oldest first.
func DueDates(def core.RecurrenceDefinition, today core.Date) ([]core.Date, error) {
	stepper, err := StepperFor(def)
	if err != nil {
		return nil, err
	}
	if err := def.StartDate.Validate(); err != nil {
		return nil, &core.ConfigurationError{DefinitionID: def.ID, Reason: "missing start date"}
	}

	next := def.StartDate
	if def.LastApplied != nil {
		if def.LastApplied.Before(def.StartDate) {
			return nil, &core.ConfigurationError{
				DefinitionID: def.ID,
				Reason:       fmt.Sprintf("last applied %s before start %s", def.LastApplied, def.StartDate),
			}
		}
		next = stepper.Next(*def.LastApplied, def.StartDate)
	}

	var due []core.Date
	for !next.After(today) {
		due = append(due, next)
		next = stepper.Next(next, def.StartDate)
	}
	return due, nil
}
