package ta

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes, 5); !almostEqual(got, 3) {
		t.Errorf("SMA(5) = %v, want 3", got)
	}
	if got := SMA(closes, 2); !almostEqual(got, 4.5) {
		t.Errorf("SMA(2) = %v, want 4.5", got)
	}
	if got := SMA(closes, 6); !math.IsNaN(got) {
		t.Errorf("SMA with short input = %v, want NaN", got)
	}
	if got := SMA(closes, 0); !math.IsNaN(got) {
		t.Errorf("SMA(0) = %v, want NaN", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if got := RSI(rising, 14); !almostEqual(got, 100) {
		t.Errorf("RSI of monotone rise = %v, want 100", got)
	}

	falling := make([]float64, 15)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	if got := RSI(falling, 14); !almostEqual(got, 0) {
		t.Errorf("RSI of monotone fall = %v, want 0", got)
	}

	if got := RSI(rising[:5], 14); !math.IsNaN(got) {
		t.Errorf("RSI with short input = %v, want NaN", got)
	}
}

func TestRSIKnownValue(t *testing.T) {
	// 7 up moves of 1 and 7 down moves of 0.5 over a 14 period window:
	// avg gain 0.5, avg loss 0.25, RS 2, RSI 100 - 100/3.
	closes := []float64{100}
	v := 100.0
	for i := 0; i < 7; i++ {
		v += 1
		closes = append(closes, v)
	}
	for i := 0; i < 7; i++ {
		v -= 0.5
		closes = append(closes, v)
	}
	want := 100 - 100.0/3
	if got := RSI(closes, 14); !almostEqual(got, want) {
		t.Errorf("RSI = %v, want %v", got, want)
	}
}

func TestEMASeries(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	s := EMASeries(vals, 3)
	if !math.IsNaN(s[0]) || !math.IsNaN(s[1]) {
		t.Error("positions before the seed must be NaN")
	}
	if !almostEqual(s[2], 2) {
		t.Errorf("seed = %v, want SMA 2", s[2])
	}
	// k = 0.5: 4*0.5 + 2*0.5 = 3; 5*0.5 + 3*0.5 = 4.
	if !almostEqual(s[3], 3) || !almostEqual(s[4], 4) {
		t.Errorf("series = %v", s)
	}
	if got := EMA(vals, 3); !almostEqual(got, 4) {
		t.Errorf("EMA = %v, want 4", got)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 50
	}
	macd, sig, hist := MACD(flat, 12, 26, 9)
	if !almostEqual(macd, 0) || !almostEqual(sig, 0) || !almostEqual(hist, 0) {
		t.Errorf("MACD of flat series = %v, %v, %v", macd, sig, hist)
	}
}

func TestMACDRisingSeriesIsPositive(t *testing.T) {
	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)*2
	}
	macd, _, _ := MACD(rising, 12, 26, 9)
	if math.IsNaN(macd) || macd <= 0 {
		t.Errorf("MACD of rising series = %v, want positive", macd)
	}
}

func TestMACDShortInput(t *testing.T) {
	macd, sig, hist := MACD(make([]float64, 10), 12, 26, 9)
	if !math.IsNaN(macd) || !math.IsNaN(sig) || !math.IsNaN(hist) {
		t.Error("expected NaN for insufficient history")
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	// Mean 5, population stddev 2.
	mid, up, low := Bollinger(closes, 8, 2)
	if !almostEqual(mid, 5) || !almostEqual(up, 9) || !almostEqual(low, 1) {
		t.Errorf("Bollinger = %v, %v, %v", mid, up, low)
	}
}

func TestATR(t *testing.T) {
	highs := []float64{11, 12, 13, 14}
	lows := []float64{9, 10, 11, 12}
	closes := []float64{10, 11, 12, 13}
	// Each TR is max(2, |high-prevClose|=2, |low-prevClose|=1) = 2.
	if got := ATR(highs, lows, closes, 3); !almostEqual(got, 2) {
		t.Errorf("ATR = %v, want 2", got)
	}
	if got := ATR(highs, lows, closes[:3], 3); !math.IsNaN(got) {
		t.Errorf("mismatched input lengths = %v, want NaN", got)
	}
}
