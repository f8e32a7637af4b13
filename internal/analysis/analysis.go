// Package analysis turns a window of daily bars into a BUY/SELL/HOLD
// recommendation. Indicator signals are scored on a -1..+1 scale, averaged,
// and the result becomes the action when its magnitude clears the configured
// confidence threshold.
package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/ta"
	"trading-data-pipeline/internal/types"
)

// Params holds the indicator settings; zero values fall back to the
// conventional periods.
type Params struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BBWindow   int
	BBStdDev   float64
	// Confidence is the minimum signal strength for a BUY/SELL call.
	Confidence float64
}

func (p *Params) setDefaults() {
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.MACDFast == 0 {
		p.MACDFast = 12
	}
	if p.MACDSlow == 0 {
		p.MACDSlow = 26
	}
	if p.MACDSignal == 0 {
		p.MACDSignal = 9
	}
	if p.BBWindow == 0 {
		p.BBWindow = 20
	}
	if p.BBStdDev == 0 {
		p.BBStdDev = 2
	}
	if p.Confidence == 0 {
		p.Confidence = 0.3
	}
}

type Agent struct {
	params Params
}

var _ interfaces.Analyzer = (*Agent)(nil)

func NewAgent(params Params) *Agent {
	params.setDefaults()
	return &Agent{params: params}
}

// minBars is the shortest history that yields a meaningful MACD reading.
func (a *Agent) minBars() int {
	return a.params.MACDSlow + a.params.MACDSignal
}

// Analyze scores the bar window and returns a recommendation. Too little
// history yields a HOLD with zero confidence rather than an error; a thin
// window is a data condition, not a fault.
func (a *Agent) Analyze(ctx context.Context, symbol string, bars []types.Bar) (*types.Recommendation, error) {
	canonical := symbols.Canonical(symbol)
	if len(bars) < a.minBars() {
		return &types.Recommendation{
			Symbol:     canonical,
			Action:     "HOLD",
			Confidence: 0,
			Reasoning:  fmt.Sprintf("insufficient history: %d bars, need %d", len(bars), a.minBars()),
			Time:       time.Now(),
		}, nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}
	price := closes[len(closes)-1]

	var scores []float64
	var reasons []string

	rsi := ta.RSI(closes, a.params.RSIPeriod)
	if !math.IsNaN(rsi) {
		sig := interpretRSI(rsi)
		scores = append(scores, rsiScore(sig))
		reasons = append(reasons, "RSI: "+sig)
	}

	macd, macdSig, hist := ta.MACD(closes, a.params.MACDFast, a.params.MACDSlow, a.params.MACDSignal)
	if !math.IsNaN(macd) {
		sig := interpretMACD(macd, macdSig, hist)
		if s := macdScore(sig); s != 0 {
			scores = append(scores, s)
		}
		reasons = append(reasons, "MACD: "+sig)
	}

	trend := interpretTrend(closes)
	if s := trendScore(trend); s != 0 {
		scores = append(scores, s)
	}
	reasons = append(reasons, "Trend: "+trend)

	if bb := interpretBollinger(closes, a.params.BBWindow, a.params.BBStdDev); bb != "NEUTRAL" {
		reasons = append(reasons, "Bollinger: "+bb)
	}
	if vol := interpretVolume(closes, volumes); vol != "NEUTRAL" {
		reasons = append(reasons, "Volume: "+vol)
	}

	var score float64
	for _, s := range scores {
		score += s
	}
	if len(scores) > 0 {
		score /= float64(len(scores))
	}
	strength := math.Abs(score)

	action := "HOLD"
	if strength >= a.params.Confidence {
		if score > 0 {
			action = "BUY"
		} else {
			action = "SELL"
		}
	}

	return &types.Recommendation{
		Symbol:     canonical,
		Action:     action,
		Confidence: strength,
		Score:      score,
		Reasoning:  "Technical Analysis - " + strings.Join(reasons, ", "),
		Price:      price,
		Time:       time.Now(),
	}, nil
}

func interpretRSI(rsi float64) string {
	switch {
	case rsi > 70:
		return "OVERBOUGHT"
	case rsi < 30:
		return "OVERSOLD"
	case rsi > 50:
		return "BULLISH"
	default:
		return "BEARISH"
	}
}

func rsiScore(sig string) float64 {
	switch sig {
	case "OVERSOLD":
		return 0.7
	case "OVERBOUGHT":
		return -0.7
	case "BULLISH":
		return 0.3
	default:
		return -0.3
	}
}

func interpretMACD(macd, sig, hist float64) string {
	switch {
	case macd > sig && hist > 0:
		return "BULLISH"
	case macd < sig && hist < 0:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

func macdScore(sig string) float64 {
	switch sig {
	case "BULLISH":
		return 0.6
	case "BEARISH":
		return -0.6
	default:
		return 0
	}
}

// interpretTrend compares the latest close against the closes 5 and 20
// sessions back.
func interpretTrend(closes []float64) string {
	last := closes[len(closes)-1]
	var short, medium float64
	if len(closes) >= 6 {
		short = last/closes[len(closes)-6] - 1
	}
	if len(closes) >= 21 {
		medium = last/closes[len(closes)-21] - 1
	}

	switch {
	case short > 0.02 && medium > 0.05:
		return "STRONG_UPTREND"
	case short > 0 && medium > 0:
		return "UPTREND"
	case short < -0.02 && medium < -0.05:
		return "STRONG_DOWNTREND"
	case short < 0 && medium < 0:
		return "DOWNTREND"
	default:
		return "SIDEWAYS"
	}
}

func trendScore(trend string) float64 {
	switch trend {
	case "STRONG_UPTREND":
		return 0.8
	case "UPTREND":
		return 0.4
	case "STRONG_DOWNTREND":
		return -0.8
	case "DOWNTREND":
		return -0.4
	default:
		return 0
	}
}

func interpretBollinger(closes []float64, window int, stdDev float64) string {
	_, up, low := ta.Bollinger(closes, window, stdDev)
	if math.IsNaN(up) || math.IsNaN(low) {
		return "NEUTRAL"
	}
	price := closes[len(closes)-1]
	switch {
	case price > up:
		return "OVERBOUGHT"
	case price < low:
		return "OVERSOLD"
	default:
		return "NEUTRAL"
	}
}

func interpretVolume(closes, volumes []float64) string {
	avg := ta.SMA(volumes, 20)
	if math.IsNaN(avg) || avg <= 0 {
		return "NEUTRAL"
	}
	ratio := volumes[len(volumes)-1] / avg
	priceChange := closes[len(closes)-1] - closes[len(closes)-2]

	switch {
	case ratio > 1.5 && priceChange > 0:
		return "BULLISH_BREAKOUT"
	case ratio > 1.5:
		return "BEARISH_BREAKOUT"
	case ratio < 0.5:
		return "LOW_CONVICTION"
	default:
		return "NEUTRAL"
	}
}
