package server

import (
	"fmt"
	"strings"

	"github.com/gguuttss/RadixPlaza/config"
	"github.com/gguuttss/RadixPlaza/crypto"
	"github.com/gguuttss/RadixPlaza/native/pair"
)

// BucketRequest names a resource and an amount as decimal strings.
type BucketRequest struct {
	Resource string `json:"resource"`
	Amount   string `json:"amount"`
}

// Bucket resolves the request into an engine bucket. Resources are bech32
// addresses or the symbol shorthand of the pairs file.
func (b BucketRequest) Bucket() (pair.Bucket, error) {
	if strings.TrimSpace(b.Resource) == "" {
		return pair.Bucket{}, fmt.Errorf("%w: resource must be set", pair.ErrInvalidResource)
	}
	resource, err := crypto.DecodeAddress(strings.TrimSpace(b.Resource))
	if err != nil {
		resource, err = config.ResolveResource(b.Resource)
		if err != nil {
			return pair.Bucket{}, fmt.Errorf("%w: %v", pair.ErrInvalidResource, err)
		}
	}
	amount, err := pair.ParseDecimal(b.Amount)
	if err != nil {
		return pair.Bucket{}, err
	}
	return pair.Bucket{Resource: resource, Amount: amount}, nil
}

// AddLiquidityRequest is a deposit with optional co-liquidity.
type AddLiquidityRequest struct {
	BucketRequest
	Co *BucketRequest `json:"co,omitempty"`
}

type BucketView struct {
	Resource string `json:"resource"`
	Amount   string `json:"amount"`
}

func NewBucketView(b pair.Bucket) BucketView {
	return BucketView{Resource: b.Resource.String(), Amount: b.Amount.String()}
}

type StateView struct {
	Shortage     string `json:"shortage"`
	P0           string `json:"p0"`
	TargetRatio  string `json:"targetRatio"`
	LastOutSpot  string `json:"lastOutSpot"`
	LastOutgoing int64  `json:"lastOutgoing"`
}

func NewStateView(s pair.PairState) StateView {
	return StateView{
		Shortage:     s.Shortage.String(),
		P0:           s.P0.String(),
		TargetRatio:  s.TargetRatio.String(),
		LastOutSpot:  s.LastOutSpot.String(),
		LastOutgoing: s.LastOutgoing,
	}
}

type PoolView struct {
	Actual  string `json:"actual"`
	Surplus string `json:"surplus"`
	Units   string `json:"units"`
}

func newPoolView(p pair.Pool) PoolView {
	return PoolView{Actual: p.Actual.String(), Surplus: p.Surplus.String(), Units: p.Units.String()}
}

type ConfigView struct {
	KIn               string `json:"kIn"`
	KOut              string `json:"kOut"`
	Fee               string `json:"fee"`
	DecayFactor       string `json:"decayFactor"`
	BaseDivisibility  uint8  `json:"baseDivisibility"`
	QuoteDivisibility uint8  `json:"quoteDivisibility"`
}

// PairView is the API rendering of a pair record.
type PairView struct {
	Address        string     `json:"address"`
	Base           string     `json:"base"`
	Quote          string     `json:"quote"`
	BaseUnits      string     `json:"baseUnits"`
	QuoteUnits     string     `json:"quoteUnits"`
	Config         ConfigView `json:"config"`
	State          StateView  `json:"state"`
	ReferencePrice string     `json:"referencePrice"`
	BasePool       PoolView   `json:"basePool"`
	QuotePool      PoolView   `json:"quotePool"`
	Reserves       BucketPair `json:"reserves"`
	Fees           BucketPair `json:"fees"`
	CreatedAt      int64      `json:"createdAt"`
}

type BucketPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewPairView renders p with the reference price as of now.
func NewPairView(p *pair.Pair, now int64) PairView {
	reserves := p.Reserves()
	return PairView{
		Address:    p.Address.String(),
		Base:       p.Base.String(),
		Quote:      p.Quote.String(),
		BaseUnits:  p.BaseUnits.String(),
		QuoteUnits: p.QuoteUnits.String(),
		Config: ConfigView{
			KIn:               p.Config.KIn.String(),
			KOut:              p.Config.KOut.String(),
			Fee:               p.Config.Fee.String(),
			DecayFactor:       p.Config.DecayFactor.String(),
			BaseDivisibility:  p.Config.BaseDivisibility,
			QuoteDivisibility: p.Config.QuoteDivisibility,
		},
		State:          NewStateView(p.State),
		ReferencePrice: pair.ReferencePrice(p.Config, p.State, now).String(),
		BasePool:       newPoolView(p.BasePool),
		QuotePool:      newPoolView(p.QuotePool),
		Reserves:       BucketPair{Base: reserves.Base.String(), Quote: reserves.Quote.String()},
		Fees:           BucketPair{Base: p.FeesBase.String(), Quote: p.FeesQuote.String()},
		CreatedAt:      p.CreatedAt,
	}
}

type LegView struct {
	Kind        string `json:"kind"`
	Side        string `json:"side"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Reference   string `json:"reference"`
	TargetRatio string `json:"targetRatio"`
}

// TradeView is the API rendering of a priced trade.
type TradeView struct {
	Direction string    `json:"direction"`
	Input     string    `json:"input"`
	Gross     string    `json:"gross"`
	Fee       string    `json:"fee"`
	Dust      string    `json:"dust"`
	Output    string    `json:"output"`
	Legs      []LegView `json:"legs"`
	State     StateView `json:"state"`
}

func NewTradeView(t *pair.Trade) TradeView {
	legs := make([]LegView, 0, len(t.Legs))
	for _, leg := range t.Legs {
		legs = append(legs, LegView{
			Kind:        leg.Kind.String(),
			Side:        leg.Side.String(),
			Input:       leg.Input.String(),
			Output:      leg.Output.String(),
			Reference:   leg.Reference.String(),
			TargetRatio: leg.TargetRatio.String(),
		})
	}
	return TradeView{
		Direction: t.Direction.String(),
		Input:     t.Input.String(),
		Gross:     t.Gross.String(),
		Fee:       t.Fee.String(),
		Dust:      t.Dust.String(),
		Output:    t.Output.String(),
		Legs:      legs,
		State:     NewStateView(t.State),
	}
}

type SwapResponse struct {
	Output    BucketView `json:"output"`
	Trade     TradeView  `json:"trade"`
	Before    StateView  `json:"before"`
	After     StateView  `json:"after"`
	JournalID string     `json:"journalId,omitempty"`
}

type AddLiquidityResponse struct {
	Units      BucketView   `json:"units"`
	Remainders []BucketView `json:"remainders"`
}

type RemoveLiquidityResponse struct {
	Own   BucketView `json:"own"`
	Other BucketView `json:"other"`
}

type CollectFeesResponse struct {
	Base  BucketView `json:"base"`
	Quote BucketView `json:"quote"`
}
