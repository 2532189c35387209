package pair

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/gguuttss/RadixPlaza/crypto"
	"github.com/gguuttss/RadixPlaza/storage"
)

var (
	pairRecordPrefix = []byte("pair/record/")
	pairIndexKey     = []byte("pair/index")
)

// Amounts are stored as unsigned integers of 1e-18 units.
type storedPool struct {
	Actual  *uint256.Int
	Surplus *uint256.Int
	Units   *uint256.Int
}

type storedPair struct {
	Address           [20]byte
	Base              [20]byte
	Quote             [20]byte
	BaseUnits         [20]byte
	QuoteUnits        [20]byte
	KIn               *uint256.Int
	KOut              *uint256.Int
	Fee               *uint256.Int
	DecayFactor       *uint256.Int
	BaseDivisibility  uint8
	QuoteDivisibility uint8
	P0                *uint256.Int
	Shortage          uint8
	TargetRatio       *uint256.Int
	LastOutSpot       *uint256.Int
	LastOutgoing      uint64
	BasePool          storedPool
	QuotePool         storedPool
	FeesBase          *uint256.Int
	FeesQuote         *uint256.Int
	CreatedAt         uint64
}

// Store persists pair records in a key-value database, one RLP record per
// pair plus an index of every pair address.
type Store struct {
	db storage.Database
	mu sync.Mutex
}

// NewStore binds a store to the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// PairGet loads a pair record. The boolean reports whether it exists.
func (s *Store) PairGet(addr crypto.Address) (*Pair, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errNilState
	}
	raw, err := s.db.Get(pairKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedPair
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("pair: decode %s: %w", addr, err)
	}
	p, err := fromStoredPair(&stored)
	if err != nil {
		return nil, false, fmt.Errorf("pair: decode %s: %w", addr, err)
	}
	return p, true, nil
}

// PairPut writes the record and adds its address to the index when new.
func (s *Store) PairPut(p *Pair) error {
	if s == nil || s.db == nil {
		return errNilState
	}
	if p == nil {
		return fmt.Errorf("pair: record must not be nil")
	}
	stored, err := toStoredPair(p)
	if err != nil {
		return fmt.Errorf("pair: encode %s: %w", p.Address, err)
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(pairKey(p.Address), encoded); err != nil {
		return err
	}
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	for _, existing := range index {
		if existing == p.Address {
			return nil
		}
	}
	index = append(index, p.Address)
	return s.storeIndex(index)
}

// PairAddresses lists every stored pair in creation order.
func (s *Store) PairAddresses() ([]crypto.Address, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndex()
}

func (s *Store) loadIndex() ([]crypto.Address, error) {
	raw, err := s.db.Get(pairIndexKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries [][20]byte
	if err := rlp.DecodeBytes(raw, &entries); err != nil {
		return nil, fmt.Errorf("pair: decode index: %w", err)
	}
	out := make([]crypto.Address, 0, len(entries))
	for _, entry := range entries {
		out = append(out, crypto.MustNewAddress(crypto.ComponentPrefix, entry[:]))
	}
	return out, nil
}

func (s *Store) storeIndex(index []crypto.Address) error {
	entries := make([][20]byte, 0, len(index))
	for _, addr := range index {
		entries = append(entries, rawAddress(addr))
	}
	encoded, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return err
	}
	return s.db.Put(pairIndexKey, encoded)
}

func pairKey(addr crypto.Address) []byte {
	raw := rawAddress(addr)
	key := make([]byte, len(pairRecordPrefix)+len(raw))
	copy(key, pairRecordPrefix)
	copy(key[len(pairRecordPrefix):], raw[:])
	return key
}

func rawAddress(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}

func toStoredPool(p Pool) (storedPool, error) {
	values, err := toAttosAll(p.Actual, p.Surplus, p.Units)
	if err != nil {
		return storedPool{}, err
	}
	return storedPool{Actual: values[0], Surplus: values[1], Units: values[2]}, nil
}

func fromStoredPool(p storedPool) (Pool, error) {
	values, err := fromAttosAll(p.Actual, p.Surplus, p.Units)
	if err != nil {
		return Pool{}, err
	}
	return Pool{Actual: values[0], Surplus: values[1], Units: values[2]}, nil
}

func toStoredPair(p *Pair) (*storedPair, error) {
	values, err := toAttosAll(
		p.Config.KIn, p.Config.KOut, p.Config.Fee, p.Config.DecayFactor,
		p.State.P0, p.State.TargetRatio, p.State.LastOutSpot, p.FeesBase, p.FeesQuote,
	)
	if err != nil {
		return nil, err
	}
	basePool, err := toStoredPool(p.BasePool)
	if err != nil {
		return nil, err
	}
	quotePool, err := toStoredPool(p.QuotePool)
	if err != nil {
		return nil, err
	}
	return &storedPair{
		Address:           rawAddress(p.Address),
		Base:              rawAddress(p.Base),
		Quote:             rawAddress(p.Quote),
		BaseUnits:         rawAddress(p.BaseUnits),
		QuoteUnits:        rawAddress(p.QuoteUnits),
		KIn:               values[0],
		KOut:              values[1],
		Fee:               values[2],
		DecayFactor:       values[3],
		BaseDivisibility:  p.Config.BaseDivisibility,
		QuoteDivisibility: p.Config.QuoteDivisibility,
		P0:                values[4],
		Shortage:          uint8(p.State.Shortage),
		TargetRatio:       values[5],
		LastOutSpot:       values[6],
		LastOutgoing:      nonNegative(p.State.LastOutgoing),
		BasePool:          basePool,
		QuotePool:         quotePool,
		FeesBase:          values[7],
		FeesQuote:         values[8],
		CreatedAt:         nonNegative(p.CreatedAt),
	}, nil
}

func fromStoredPair(s *storedPair) (*Pair, error) {
	values, err := fromAttosAll(s.KIn, s.KOut, s.Fee, s.DecayFactor, s.P0, s.TargetRatio, s.LastOutSpot, s.FeesBase, s.FeesQuote)
	if err != nil {
		return nil, err
	}
	basePool, err := fromStoredPool(s.BasePool)
	if err != nil {
		return nil, err
	}
	quotePool, err := fromStoredPool(s.QuotePool)
	if err != nil {
		return nil, err
	}
	if s.Shortage > uint8(BaseShortage) {
		return nil, fmt.Errorf("unknown shortage %d", s.Shortage)
	}
	return &Pair{
		Address:    crypto.MustNewAddress(crypto.ComponentPrefix, s.Address[:]),
		Base:       crypto.MustNewAddress(crypto.ResourcePrefix, s.Base[:]),
		Quote:      crypto.MustNewAddress(crypto.ResourcePrefix, s.Quote[:]),
		BaseUnits:  crypto.MustNewAddress(crypto.PoolUnitPrefix, s.BaseUnits[:]),
		QuoteUnits: crypto.MustNewAddress(crypto.PoolUnitPrefix, s.QuoteUnits[:]),
		Config: PairConfig{
			KIn:               values[0],
			KOut:              values[1],
			Fee:               values[2],
			DecayFactor:       values[3],
			BaseDivisibility:  s.BaseDivisibility,
			QuoteDivisibility: s.QuoteDivisibility,
		},
		State: PairState{
			P0:           values[4],
			Shortage:     Shortage(s.Shortage),
			TargetRatio:  values[5],
			LastOutSpot:  values[6],
			LastOutgoing: int64(s.LastOutgoing),
		},
		BasePool:  basePool,
		QuotePool: quotePool,
		FeesBase:  values[7],
		FeesQuote: values[8],
		CreatedAt: int64(s.CreatedAt),
	}, nil
}

// toAttos scales a non-negative decimal to an integer count of 1e-18 units.
func toAttos(d decimal.Decimal) (*uint256.Int, error) {
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrArithmeticUnderflow, d)
	}
	if err := checkRange(d); err != nil {
		return nil, err
	}
	v, overflow := uint256.FromBig(d.Shift(Scale).BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrArithmeticOverflow, d)
	}
	return v, nil
}

func fromAttos(v *uint256.Int) (decimal.Decimal, error) {
	if v == nil {
		return zero, nil
	}
	d := decimal.NewFromBigInt(v.ToBig(), -Scale)
	if err := checkRange(d); err != nil {
		return zero, err
	}
	return d, nil
}

func toAttosAll(values ...decimal.Decimal) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, value := range values {
		v, err := toAttos(value)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func fromAttosAll(values ...*uint256.Int) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, value := range values {
		d, err := fromAttos(value)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
