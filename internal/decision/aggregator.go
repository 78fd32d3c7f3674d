package decision

import (
	"math"

	"quorum/internal/analysis/indicator"
)

// Direction is the side a decision recommends.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// SignalDecision is the panel's combined vote. It is derived per evaluation and never stored
// by the aggregator.
type SignalDecision struct {
	Direction     Direction           `json:"direction" yaml:"direction"`
	Strength      int                 `json:"strength" yaml:"strength"`
	WeightedScore float64             `json:"weighted_score" yaml:"weighted_score"`
	Confidence    int                 `json:"confidence" yaml:"confidence"`
	Buys          int                 `json:"buys" yaml:"buys"`
	Sells         int                 `json:"sells" yaml:"sells"`
	Accepted      bool                `json:"accepted" yaml:"accepted"`
	Contributing  []indicator.Reading `json:"contributing,omitempty" yaml:"contributing,omitempty"`
}

// Actionable reports whether a position may be opened on this decision.
func (d SignalDecision) Actionable() bool {
	return d.Accepted && d.Direction != DirectionNone
}

// Decide combines readings by counting votes. Readings with zero weight and HOLD votes are
// ignored. A side wins only with a strict majority and at least minAgreement votes, so ties
// are never actionable. Accepted additionally requires Confidence >= minConfidence.
func Decide(readings []indicator.Reading, minAgreement int, minConfidence float64) SignalDecision {
	var buys, sells int
	var buyWeight, sellWeight float64
	for _, r := range readings {
		if r.Weight <= 0 {
			continue
		}
		switch r.Signal {
		case indicator.SignalBuy:
			buys++
			buyWeight += r.Weight
		case indicator.SignalSell:
			sells++
			sellWeight += r.Weight
		}
	}

	d := SignalDecision{Direction: DirectionNone, Buys: buys, Sells: sells}
	if total := buys + sells; total > 0 {
		d.Confidence = int(math.Round(100 * float64(max(buys, sells)) / float64(total)))
	}

	var want indicator.Signal
	switch {
	case buys > sells && buys >= minAgreement:
		d.Direction = DirectionLong
		d.Strength = buys
		d.WeightedScore = buyWeight
		want = indicator.SignalBuy
	case sells > buys && sells >= minAgreement:
		d.Direction = DirectionShort
		d.Strength = sells
		d.WeightedScore = sellWeight
		want = indicator.SignalSell
	default:
		return d
	}

	for _, r := range readings {
		if r.Weight > 0 && r.Signal == want {
			d.Contributing = append(d.Contributing, r)
		}
	}
	d.Accepted = float64(d.Confidence) >= minConfidence
	return d
}
