package domain

// PricePoint is one appended entry of an asset's price history. A point is
// written at most once per (asset, tick) and never mutated afterwards.
type PricePoint struct {
	Tick         int64 `json:"tick"`
	Asset        Asset `json:"asset"`
	Price        int64 `json:"price"`
	DayAverage   int64 `json:"day_average"`
	WeekAverage  int64 `json:"week_average"`
	MonthAverage int64 `json:"month_average"`
}
