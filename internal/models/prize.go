package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type PrizeKind string

const (
	PrizeKindSingle PrizeKind = "single"
	PrizeKindRange  PrizeKind = "range"
)

// Prize is one row of a challenge prize table. It is either a
// SingleRankPrize or a RangePrize; values are only obtainable through the
// constructors, so a Prize is always well-formed.
type Prize interface {
	Kind() PrizeKind
	// Covers reports whether the prize is awarded to the given rank.
	Covers(rank int) bool
	Amount() decimal.Decimal
	Label() string
	bounds() (int, int)
}

// SingleRankPrize is awarded to exactly one rank.
type SingleRankPrize struct {
	rank   int
	label  string
	amount decimal.Decimal
}

// RangePrize is a bulk prize awarded to every rank in [RankStart, RankEnd].
type RangePrize struct {
	rankStart int
	rankEnd   int
	label     string
	amount    decimal.Decimal
}

var (
	ErrPrizeRank     = errors.New("prize rank must be at least 1")
	ErrPrizeRange    = errors.New("prize rank start must not exceed rank end")
	ErrPrizeAmount   = errors.New("prize amount cannot be negative")
	ErrPrizeShape    = errors.New("bulk prizes take a rank range, single prizes take a rank")
	ErrPrizeOverlaps = errors.New("prize ranks overlap")
)

func NewSingleRankPrize(rank int, label string, amount decimal.Decimal) (SingleRankPrize, error) {
	if rank < 1 {
		return SingleRankPrize{}, ErrPrizeRank
	}
	if amount.IsNegative() {
		return SingleRankPrize{}, ErrPrizeAmount
	}
	return SingleRankPrize{rank: rank, label: label, amount: amount}, nil
}

func NewRangePrize(rankStart, rankEnd int, label string, amount decimal.Decimal) (RangePrize, error) {
	if rankStart < 1 {
		return RangePrize{}, ErrPrizeRank
	}
	if rankStart > rankEnd {
		return RangePrize{}, ErrPrizeRange
	}
	if amount.IsNegative() {
		return RangePrize{}, ErrPrizeAmount
	}
	return RangePrize{rankStart: rankStart, rankEnd: rankEnd, label: label, amount: amount}, nil
}

func (p SingleRankPrize) Kind() PrizeKind { return PrizeKindSingle }
func (p SingleRankPrize) Covers(rank int) bool { return rank == p.rank }
func (p SingleRankPrize) Amount() decimal.Decimal { return p.amount }
func (p SingleRankPrize) Label() string { return p.label }
func (p SingleRankPrize) Rank() int { return p.rank }
func (p SingleRankPrize) bounds() (int, int) { return p.rank, p.rank }
func (p RangePrize) Kind() PrizeKind { return PrizeKindRange }
func (p RangePrize) Covers(rank int) bool { return rank >= p.rankStart && rank <= p.rankEnd }
func (p RangePrize) Amount() decimal.Decimal { return p.amount }
func (p RangePrize) Label() string { return p.label }
func (p RangePrize) RankStart() int { return p.rankStart }
func (p RangePrize) RankEnd() int { return p.rankEnd }
func (p RangePrize) bounds() (int, int) { return p.rankStart, p.rankEnd }

// prizeRecord is the wire and storage shape of a prize.
type prizeRecord struct {
	Rank      *int            `json:"rank,omitempty"`
	RankStart *int            `json:"rank_start,omitempty"`
	RankEnd   *int            `json:"rank_end,omitempty"`
	Prize     string          `json:"prize"`
	Amount    decimal.Decimal `json:"amount"`
	IsBulk    bool            `json:"is_bulk"`
}

func (r prizeRecord) toPrize() (Prize, error) {
	if r.IsBulk {
		if r.Rank != nil || r.RankStart == nil || r.RankEnd == nil {
			return nil, ErrPrizeShape
		}
		return NewRangePrize(*r.RankStart, *r.RankEnd, r.Prize, r.Amount)
	}
	if r.Rank == nil || r.RankStart != nil || r.RankEnd != nil {
		return nil, ErrPrizeShape
	}
	return NewSingleRankPrize(*r.Rank, r.Prize, r.Amount)
}

func recordOf(p Prize) prizeRecord {
	rec := prizeRecord{Prize: p.Label(), Amount: p.Amount()}
	switch v := p.(type) {
	case SingleRankPrize:
		rank := v.rank
		rec.Rank = &rank
	case RangePrize:
		start, end := v.rankStart, v.rankEnd
		rec.RankStart = &start
		rec.RankEnd = &end
		rec.IsBulk = true
	}
	return rec
}

// PrizeTable is the ordered prize list of a challenge.
type PrizeTable []Prize

// Validate rejects tables whose prizes award the same rank twice.
func (t PrizeTable) Validate() error {
	for i := range t {
		aStart, aEnd := t[i].bounds()
		for j := i + 1; j < len(t); j++ {
			bStart, bEnd := t[j].bounds()
			if aStart <= bEnd && bStart <= aEnd {
				return fmt.Errorf("%w: entries %d and %d", ErrPrizeOverlaps, i+1, j+1)
			}
		}
	}
	return nil
}

// For returns the prize awarded to rank, if any.
func (t PrizeTable) For(rank int) (Prize, bool) {
	for _, p := range t {
		if p.Covers(rank) {
			return p, true
		}
	}
	return nil, false
}

// Total sums every award, counting range prizes once per covered rank.
func (t PrizeTable) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range t {
		start, end := p.bounds()
		total = total.Add(p.Amount().Mul(decimal.NewFromInt(int64(end - start + 1))))
	}
	return total
}

func (t PrizeTable) MarshalJSON() ([]byte, error) {
	records := make([]prizeRecord, 0, len(t))
	for _, p := range t {
		records = append(records, recordOf(p))
	}
	return json.Marshal(records)
}

func (t *PrizeTable) UnmarshalJSON(data []byte) error {
	var records []prizeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	table := make(PrizeTable, 0, len(records))
	for i, rec := range records {
		p, err := rec.toPrize()
		if err != nil {
			return fmt.Errorf("prize %d: %w", i+1, err)
		}
		table = append(table, p)
	}
	*t = table
	return nil
}

func (t PrizeTable) Value() (driver.Value, error) {
	b, err := t.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *PrizeTable) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	return scanJSON(value, t)
}
