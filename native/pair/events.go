package pair

import (
	"strconv"

	"github.com/gguuttss/RadixPlaza/core/events"
	"github.com/gguuttss/RadixPlaza/core/types"
)

const (
	// EventTypePairInstantiated is emitted when a new pair record is created.
	EventTypePairInstantiated = "pair.instantiated"
	// EventTypeLiquidityAdded is emitted when a pool mints units for a deposit.
	EventTypeLiquidityAdded = "pair.liquidity.added"
	// EventTypeLiquidityRemoved is emitted when pool units are redeemed.
	EventTypeLiquidityRemoved = "pair.liquidity.removed"
	// EventTypeSwapped is emitted for every committed swap.
	EventTypeSwapped = "pair.swapped"
	// EventTypeShortageChanged is emitted when a call moves the pair between
	// shortage states.
	EventTypeShortageChanged = "pair.shortage.changed"
	// EventTypeFeesCollected is emitted when the fee vault is emptied.
	EventTypeFeesCollected = "pair.fees.collected"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// PairInstantiatedEvent announces a new pair and its pool-unit resources.
func PairInstantiatedEvent(p *Pair) *types.Event {
	return &types.Event{
		Type: EventTypePairInstantiated,
		Attributes: map[string]string{
			"pair":        p.Address.String(),
			"base":        p.Base.String(),
			"quote":       p.Quote.String(),
			"baseUnits":   p.BaseUnits.String(),
			"quoteUnits":  p.QuoteUnits.String(),
			"p0":          p.State.P0.String(),
			"kIn":         p.Config.KIn.String(),
			"kOut":        p.Config.KOut.String(),
			"fee":         p.Config.Fee.String(),
			"decayFactor": p.Config.DecayFactor.String(),
		},
	}
}

// LiquidityAddedEvent captures a deposit and the units minted for it.
func LiquidityAddedEvent(pair string, deposit Bucket, units Bucket) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityAdded,
		Attributes: map[string]string{
			"pair":      pair,
			"resource":  deposit.Resource.String(),
			"amount":    deposit.Amount.String(),
			"unitsType": units.Resource.String(),
			"units":     units.Amount.String(),
		},
	}
}

// LiquidityRemovedEvent captures a redemption of pool units.
func LiquidityRemovedEvent(pair string, units Bucket, own Bucket, other Bucket) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityRemoved,
		Attributes: map[string]string{
			"pair":          pair,
			"unitsType":     units.Resource.String(),
			"units":         units.Amount.String(),
			"ownResource":   own.Resource.String(),
			"ownAmount":     own.Amount.String(),
			"otherResource": other.Resource.String(),
			"otherAmount":   other.Amount.String(),
		},
	}
}

// SwappedEvent captures the amounts and the resulting state of a swap.
func SwappedEvent(pair string, input Bucket, output Bucket, trade *Trade) *types.Event {
	return &types.Event{
		Type: EventTypeSwapped,
		Attributes: map[string]string{
			"pair":         pair,
			"direction":    trade.Direction.String(),
			"inResource":   input.Resource.String(),
			"inAmount":     input.Amount.String(),
			"outResource":  output.Resource.String(),
			"outAmount":    output.Amount.String(),
			"fee":          trade.Fee.String(),
			"legs":         strconv.Itoa(len(trade.Legs)),
			"shortage":     trade.State.Shortage.String(),
			"p0":           trade.State.P0.String(),
			"targetRatio":  trade.State.TargetRatio.String(),
			"lastOutSpot":  trade.State.LastOutSpot.String(),
			"lastOutgoing": strconv.FormatInt(trade.State.LastOutgoing, 10),
		},
	}
}

// ShortageChangedEvent records a transition of the shortage state.
func ShortageChangedEvent(pair string, from, to Shortage, p0 string) *types.Event {
	return &types.Event{
		Type: EventTypeShortageChanged,
		Attributes: map[string]string{
			"pair": pair,
			"from": from.String(),
			"to":   to.String(),
			"p0":   p0,
		},
	}
}

// FeesCollectedEvent records the buckets withdrawn from the fee vault.
func FeesCollectedEvent(pair string, base Bucket, quote Bucket) *types.Event {
	return &types.Event{
		Type: EventTypeFeesCollected,
		Attributes: map[string]string{
			"pair":          pair,
			"baseResource":  base.Resource.String(),
			"baseAmount":    base.Amount.String(),
			"quoteResource": quote.Resource.String(),
			"quoteAmount":   quote.Amount.String(),
		},
	}
}
