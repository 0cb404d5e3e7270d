package backtest

import (
	"context"
	"io"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// BarStream yields one symbol's bars in order. Next returns io.EOF when exhausted.
type BarStream interface {
	Symbol() string
	Next(ctx context.Context) (types.Bar, error)
}

// SliceStream replays an in-memory slice
type SliceStream struct {
	symbol string
	bars   []types.Bar
	pos    int
}

// NewSliceStream wraps bars; they are not copied
func NewSliceStream(symbol string, bars []types.Bar) *SliceStream {
	return &SliceStream{symbol: symbol, bars: bars}
}

func (s *SliceStream) Symbol() string { return s.symbol }

func (s *SliceStream) Next(ctx context.Context) (types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return types.Bar{}, err
	}
	if s.pos >= len(s.bars) {
		return types.Bar{}, io.EOF
	}
	b := s.bars[s.pos]
	s.pos++
	return b, nil
}

// LoadFunc fetches a symbol's bars on first use
type LoadFunc func(ctx context.Context, symbol string) ([]types.Bar, error)

// LazyStream defers loading until the replay first reads the symbol. A failed
// load is retried on the next call.
type LazyStream struct {
	symbol string
	load   LoadFunc
	inner  *SliceStream
}

// NewLazyStream creates a stream backed by load
func NewLazyStream(symbol string, load LoadFunc) *LazyStream {
	return &LazyStream{symbol: symbol, load: load}
}

func (s *LazyStream) Symbol() string { return s.symbol }

func (s *LazyStream) Next(ctx context.Context) (types.Bar, error) {
	if s.inner == nil {
		bars, err := s.load(ctx, s.symbol)
		if err != nil {
			return types.Bar{}, err
		}
		s.inner = NewSliceStream(s.symbol, bars)
	}
	return s.inner.Next(ctx)
}

// head is the next unconsumed bar of a stream
type head struct {
	bar  types.Bar
	ok   bool
	done bool
}
