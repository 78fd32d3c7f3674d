package market

import "time"

// Bar is one OHLCV candle. Bars are produced oldest first and never mutated afterwards.
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Series holds the column views of a bar slice as consumed by the indicator library.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Columns splits bars into parallel float slices.
func Columns(bars []Bar) Series {
	s := Series{
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Open[i] = b.Open
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Close[i] = b.Close
		s.Volume[i] = b.Volume
	}
	return s
}

// LastClose returns the close of the newest bar, or 0 for an empty slice.
func LastClose(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}
