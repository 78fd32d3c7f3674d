package market

import "context"

// Source is the market-data collaborator. Both calls may fail or hang; callers wrap them
// with a deadline.
type Source interface {
	FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
	FetchCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// SourceFunc adapts a pair of functions to Source.
type SourceFunc struct {
	Bars  func(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
	Price func(ctx context.Context, symbol string) (float64, error)
}

func (f SourceFunc) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	return f.Bars(ctx, symbol, timeframe, limit)
}

func (f SourceFunc) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.Price(ctx, symbol)
}
