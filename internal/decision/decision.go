// Package decision maps pacing measurements to a recommended action.
package decision

import (
	"fmt"
	"math"

	"pacer/internal/models"
)

const (
	// TargetCAC is the acceptable cost per acquired ticket
	TargetCAC = 12.00
	// CACTolerance scales TargetCAC into the PUSH ceiling of 18.00
	CACTolerance = 1.5

	pivotPace = -35.0
	pushPace  = -15.0
	coastPace = 25.0
	coastSell = 30.0

	lateWindowDays = 30
	pushMinDays    = 7
)

// Input carries everything Classify looks at
type Input struct {
	TicketsSold      int
	Capacity         int
	SellThrough      float64
	Pace             float64
	CAC              float64
	DaysUntil        int
	HistoricalMedian float64
	SourceCount      int
}

// Outcome is a classified recommendation
type Outcome struct {
	Decision  models.Decision
	Urgency   int
	Rationale string
	Actions   []string
}

// Classify walks the decision ladder top to bottom; the first matching rung wins.
func Classify(in Input) Outcome {
	cacOK := in.CAC <= TargetCAC*CACTolerance || in.CAC == 0
	late := in.DaysUntil < lateWindowDays

	context := ""
	if in.HistoricalMedian > 0 {
		context = fmt.Sprintf(" vs historical median %.1f%%", in.HistoricalMedian)
	}
	basis := "No historical data"
	if in.SourceCount > 0 {
		basis = fmt.Sprintf("Based on %d past events", in.SourceCount)
	}

	switch {
	case in.Pace < pivotPace:
		return Outcome{
			Decision:  models.DecisionPivot,
			Urgency:   pick(late, 9, 7),
			Rationale: fmt.Sprintf("Sales %.0f%% behind historical pace%s. %s.", math.Abs(in.Pace), context, basis),
			Actions: []string{
				"PAUSE underperforming ad campaigns",
				"Audit and refresh all creative",
				"Test flash sale / promo offer",
				"Try completely different audience",
				"Consider influencer partnership",
			},
		}

	case in.Pace < pushPace && cacOK && in.DaysUntil > pushMinDays:
		bump := math.Min(50, math.Abs(in.Pace))
		return Outcome{
			Decision:  models.DecisionPush,
			Urgency:   pick(late, 7, 5),
			Rationale: fmt.Sprintf("Sales %.0f%% behind but CAC $%.2f acceptable%s. %s.", math.Abs(in.Pace), in.CAC, context, basis),
			Actions: []string{
				fmt.Sprintf("Increase ad budget by %.0f%%", bump),
				"Expand lookalike audiences",
				"Add urgency messaging",
				"Email high-value past attendees",
				"Increase retargeting frequency",
			},
		}

	case in.Pace > coastPace && in.SellThrough > coastSell:
		cut := math.Min(40, in.Pace/2)
		return Outcome{
			Decision:  models.DecisionCoast,
			Urgency:   3,
			Rationale: fmt.Sprintf("Sales %.0f%% ahead of historical%s. %s.", in.Pace, context, basis),
			Actions: []string{
				fmt.Sprintf("Reduce ad budget by %.0f%%", cut),
				"Reallocate budget to struggling events",
				"Focus on VIP upsells",
				"Maintain organic only",
			},
		}
	}

	return Outcome{
		Decision:  models.DecisionMaintain,
		Urgency:   pick(late, 5, 3),
		Rationale: fmt.Sprintf("Tracking within historical norms%s. %s.", context, basis),
		Actions: []string{
			"Maintain current spend",
			"Continue daily monitoring",
			"Prepare final push for last 2 weeks",
		},
	}
}

func pick(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}
