package learning

import (
	"fmt"
	"math"
	"sort"

	"ore-strategy-lab/internal/domain"
)

// Fixed detector thresholds. MinSamples covers the remaining detectors.
const (
	minMotherlodeSamples = 5
	minFullORESamples    = 10
	copyMinRounds        = 20
	copyMinWins          = 5
	copyTopN             = 3
	maxExamples          = 5
)

var detectorOrder = []domain.StrategyKind{
	domain.StrategyLowSquare,
	domain.StrategyHighCoverage,
	domain.StrategyMotherlode,
	domain.StrategyLowCompetition,
	domain.StrategyFullORE,
	domain.StrategyCopyTopPlayer,
}

func (e *Engine) detect(k domain.StrategyKind) []domain.DetectedStrategy {
	switch k {
	case domain.StrategyLowSquare:
		return e.detectLowSquare()
	case domain.StrategyHighCoverage:
		return e.detectHighCoverage()
	case domain.StrategyMotherlode:
		return e.detectMotherlode()
	case domain.StrategyLowCompetition:
		return e.detectLowCompetition()
	case domain.StrategyFullORE:
		return e.detectFullORE()
	case domain.StrategyCopyTopPlayer:
		return e.detectCopyTopPlayers()
	default:
		return nil
	}
}

// winSet summarizes the wins matching one detector.
type winSet struct {
	wins []WinRecord
}

func (e *Engine) filter(keep func(WinRecord) bool) winSet {
	var ws winSet
	for _, w := range e.history {
		if keep(w) {
			ws.wins = append(ws.wins, w)
		}
	}
	return ws
}

func (ws winSet) n() int { return len(ws.wins) }

func (ws winSet) fullOREShare() float64 {
	if len(ws.wins) == 0 {
		return 0
	}
	full := 0
	for _, w := range ws.wins {
		if w.IsFullORE {
			full++
		}
	}
	return float64(full) / float64(len(ws.wins))
}

func (ws winSet) avgROI() float64 {
	sum, n := 0.0, 0
	for _, w := range ws.wins {
		if w.AmountBet == 0 {
			continue
		}
		sum += w.ROI()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (ws winSet) avgBetSOL() float64 {
	if len(ws.wins) == 0 {
		return 0
	}
	var total uint64
	for _, w := range ws.wins {
		total += w.AmountBet
	}
	return domain.LamportsToSOL(total) / float64(len(ws.wins))
}

func (ws winSet) avgSquares() float64 {
	if len(ws.wins) == 0 {
		return 0
	}
	sum := 0
	for _, w := range ws.wins {
		sum += w.NumSquares
	}
	return float64(sum) / float64(len(ws.wins))
}

func (ws winSet) avgRoundSOL() float64 {
	if len(ws.wins) == 0 {
		return 0
	}
	var total uint64
	for _, w := range ws.wins {
		total += w.RoundTotal
	}
	return domain.LamportsToSOL(total) / float64(len(ws.wins))
}

// mostCommonCount returns the modal square count, lower count on ties.
func (ws winSet) mostCommonCount(fallback int) int {
	var freq [domain.BoardSize + 1]int
	for _, w := range ws.wins {
		if w.NumSquares > 0 && w.NumSquares <= domain.BoardSize {
			freq[w.NumSquares]++
		}
	}
	best, bestN := fallback, 0
	for c := 1; c <= domain.BoardSize; c++ {
		if freq[c] > bestN {
			best, bestN = c, freq[c]
		}
	}
	return best
}

func (ws winSet) examples() []string {
	var out []string
	for _, w := range ws.wins {
		if len(out) == maxExamples {
			break
		}
		out = append(out, w.Winner)
	}
	return out
}

func confidence(n, scale int) float64 {
	return math.Min(float64(n)/float64(scale), 1)
}

func (e *Engine) detectLowSquare() []domain.DetectedStrategy {
	ws := e.filter(func(w WinRecord) bool { return w.NumSquares > 0 && w.NumSquares <= 3 })
	if ws.n() < e.opts.MinSamples {
		return nil
	}
	return []domain.DetectedStrategy{{
		Kind:             domain.StrategyLowSquare,
		Name:             "Low Square Focus",
		SquareCount:      2,
		StakeSizeSOL:     0.01,
		TargetTier:       domain.TierLow,
		Confidence:       confidence(ws.n(), 100),
		AvgROI:           ws.avgROI(),
		SampleSize:       ws.n(),
		Consistent:       ws.fullOREShare() > 0.3,
		ExampleAddresses: ws.examples(),
	}}
}

func (e *Engine) detectHighCoverage() []domain.DetectedStrategy {
	ws := e.filter(func(w WinRecord) bool { return w.NumSquares >= 10 })
	if ws.n() < e.opts.MinSamples {
		return nil
	}
	return []domain.DetectedStrategy{{
		Kind:             domain.StrategyHighCoverage,
		Name:             "High Coverage",
		SquareCount:      12,
		StakeSizeSOL:     0.04 / 12,
		TargetTier:       domain.TierMedium,
		Confidence:       confidence(ws.n(), 100),
		AvgROI:           ws.avgROI(),
		SampleSize:       ws.n(),
		Consistent:       ws.fullOREShare() > 0.3,
		ExampleAddresses: ws.examples(),
	}}
}

func (e *Engine) detectMotherlode() []domain.DetectedStrategy {
	ws := e.filter(func(w WinRecord) bool { return w.IsMotherlode })
	if ws.n() < minMotherlodeSamples {
		return nil
	}
	count := int(math.Round(ws.avgSquares()))
	if count < 1 {
		count = 1
	}
	return []domain.DetectedStrategy{{
		Kind:             domain.StrategyMotherlode,
		Name:             "Motherlode Hunter",
		SquareCount:      count,
		StakeSizeSOL:     ws.avgBetSOL(),
		TargetTier:       domain.TierHigh,
		Confidence:       confidence(ws.n(), 20),
		AvgROI:           ws.avgROI(),
		SampleSize:       ws.n(),
		Consistent:       ws.n() >= 10,
		ExampleAddresses: ws.examples(),
	}}
}

func (e *Engine) detectLowCompetition() []domain.DetectedStrategy {
	limit := e.opts.LowCompetitionLamports
	ws := e.filter(func(w WinRecord) bool { return w.RoundTotal < limit })
	if ws.n() < e.opts.MinSamples {
		return nil
	}
	return []domain.DetectedStrategy{{
		Kind:             domain.StrategyLowCompetition,
		Name:             "Low Competition Hunter",
		SquareCount:      5,
		StakeSizeSOL:     0.02,
		TargetTier:       domain.TierVeryLow,
		Confidence:       confidence(ws.n(), 100),
		AvgROI:           ws.avgROI(),
		SampleSize:       ws.n(),
		Consistent:       ws.fullOREShare() > 0.4,
		ExampleAddresses: ws.examples(),
	}}
}

func (e *Engine) detectFullORE() []domain.DetectedStrategy {
	ws := e.filter(func(w WinRecord) bool { return w.IsFullORE })
	if ws.n() < minFullORESamples {
		return nil
	}
	tier := domain.TierMedium
	switch avg := ws.avgRoundSOL(); {
	case avg < 2:
		tier = domain.TierVeryLow
	case avg < 5:
		tier = domain.TierLow
	}
	return []domain.DetectedStrategy{{
		Kind:             domain.StrategyFullORE,
		Name:             "Full ORE Winner",
		SquareCount:      ws.mostCommonCount(5),
		StakeSizeSOL:     ws.avgBetSOL(),
		TargetTier:       tier,
		Confidence:       confidence(ws.n(), 50),
		AvgROI:           1.0,
		SampleSize:       ws.n(),
		Consistent:       true,
		ExampleAddresses: ws.examples(),
	}}
}

type scoredProfile struct {
	p     *domain.ParticipantProfile
	score float64
}

// rankProfiles keeps profiles passing keep and orders them by score, then address.
func rankProfiles(profiles []*domain.ParticipantProfile, keep func(*domain.ParticipantProfile) bool, score func(*domain.ParticipantProfile) float64) []scoredProfile {
	var out []scoredProfile
	for _, p := range profiles {
		if keep(p) {
			out = append(out, scoredProfile{p: p, score: score(p)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].p.Address < out[j].p.Address
	})
	return out
}

func (e *Engine) detectCopyTopPlayers() []domain.DetectedStrategy {
	ranked := rankProfiles(e.book.Profiles(),
		func(p *domain.ParticipantProfile) bool {
			return p.RoundsPlayed >= copyMinRounds && p.Wins >= copyMinWins
		},
		func(p *domain.ParticipantProfile) float64 {
			return p.ROI() * p.WinRate() * p.OREPerSOL()
		})
	if len(ranked) > copyTopN {
		ranked = ranked[:copyTopN]
	}

	var out []domain.DetectedStrategy
	for _, r := range ranked {
		p := r.p
		tier := domain.TierMedium
		if p.PrefersLowCompetition {
			tier = domain.TierLow
		}
		count := p.PreferredSquareCount
		if count < 1 {
			count = 1
		}
		out = append(out, domain.DetectedStrategy{
			Kind:             domain.StrategyCopyTopPlayer,
			Name:             fmt.Sprintf("Copy %s", shortAddr(p.Address)),
			SquareCount:      count,
			StakeSizeSOL:     domain.LamportsToSOL(p.TotalDeployed) / float64(p.RoundsPlayed),
			TargetTier:       tier,
			PreferredSquares: append([]domain.SquareIndex(nil), p.FavoriteSquares...),
			Confidence:       math.Min(math.Min(float64(p.RoundsPlayed)/100, 1)*p.WinRate(), 1),
			AvgROI:           p.ROI(),
			SampleSize:       int(p.RoundsPlayed),
			Consistent:       p.Wins >= 10,
			ExampleAddresses: []string{p.Address},
		})
	}
	return out
}

func shortAddr(a string) string {
	if len(a) <= 8 {
		return a
	}
	return a[:8]
}
