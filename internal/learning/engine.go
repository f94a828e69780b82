// Package learning mines recurring winning behaviour out of resolved rounds.
//
// Engine keeps a bounded win history, per-square-count performance and the
// current list of detected strategies. Participant profiles live in a
// ProfileBook (the tracker) so that deploy and win accounting share one
// record per wallet.
//
// Engine is not safe for concurrent use; the pipeline serializes access.
package learning

import (
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"ore-strategy-lab/internal/domain"
)

// Defaults.
const (
	DefaultMaxWinHistory = 10000
	DefaultAnalyzeEvery  = 50
	DefaultMinSamples    = 20
)

// DefaultLowCompetitionLamports bounds the round total of a low-competition win.
const DefaultLowCompetitionLamports = 2 * domain.LamportsPerSOL

// lowCompetitionProfileSOL marks a participant as preferring quiet rounds.
const lowCompetitionProfileSOL = 5.0

// ProfileBook owns participant profiles.
type ProfileBook interface {
	// Touch returns the live profile for addr, creating it if needed.
	Touch(addr string, slot int64) *domain.ParticipantProfile
	// Profiles returns copies of all profiles sorted by address.
	Profiles() []*domain.ParticipantProfile
	ProfileCount() int
}

// Options configures an Engine.
type Options struct {
	MaxWinHistory          int // oldest wins are dropped beyond this
	AnalyzeEvery           int // re-run detectors every N wins
	MinSamples             int // threshold for the square-count and competition detectors
	LowCompetitionLamports uint64
	Logger                 *log.Logger
}

func (o *Options) withDefaults() {
	if o.MaxWinHistory <= 0 {
		o.MaxWinHistory = DefaultMaxWinHistory
	}
	if o.AnalyzeEvery <= 0 {
		o.AnalyzeEvery = DefaultAnalyzeEvery
	}
	if o.MinSamples <= 0 {
		o.MinSamples = DefaultMinSamples
	}
	if o.LowCompetitionLamports == 0 {
		o.LowCompetitionLamports = DefaultLowCompetitionLamports
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// WinRecord is one participant's win in one round.
type WinRecord struct {
	RoundID             uint64               `json:"round_id"`
	Winner              string               `json:"winner"`
	WinningSquare       domain.SquareIndex   `json:"winning_square"`
	AmountBet           uint64               `json:"amount_bet"` // lamports on the winning square
	AmountWon           uint64               `json:"amount_won"` // lamports
	SquaresBet          []domain.SquareIndex `json:"squares_bet"`
	NumSquares          int                  `json:"num_squares"`
	RoundTotal          uint64               `json:"round_total"` // lamports
	NumDeployers        int                  `json:"num_deployers"`
	IsMotherlode        bool                 `json:"is_motherlode"`
	IsFullORE           bool                 `json:"is_full_ore"`
	OREEarned           float64              `json:"ore_earned"`
	CompetitionOnSquare uint64               `json:"competition_on_square"`
	SharePct            float64              `json:"share_pct"`
	Slot                int64                `json:"slot"`
}

// ROI returns (won - bet) / bet.
func (w WinRecord) ROI() float64 {
	if w.AmountBet == 0 {
		return 0
	}
	return (float64(w.AmountWon) - float64(w.AmountBet)) / float64(w.AmountBet)
}

// Engine is the adaptive strategy learner.
type Engine struct {
	opts   Options
	logger *log.Logger
	book   ProfileBook

	history     []WinRecord
	counts      domain.CountStats
	totalWins   uint64
	fullOREWins uint64
	rounds      uint64

	strategies []domain.DetectedStrategy
	analysisID string
	analyzedAt time.Time
}

// New creates an Engine writing profiles through book.
func New(book ProfileBook, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		opts:   opts,
		logger: opts.Logger,
		book:   book,
		counts: domain.NewCountStats(),
	}
}

// RecordWin updates the winner's profile and the win history.
func (e *Engine) RecordWin(w WinRecord) {
	p := e.book.Touch(w.Winner, w.Slot)
	p.Wins++
	p.TotalWon += w.AmountWon
	p.OREEarned += w.OREEarned
	if w.IsFullORE {
		p.FullOREWins++
	}
	if w.IsMotherlode {
		p.MotherlodeWins++
		p.HitMotherlode = true
	}

	if w.NumSquares > 0 && w.NumSquares <= domain.BoardSize {
		c := &e.counts[w.NumSquares]
		c.TimesWon++
		c.TotalWon += w.AmountWon
		c.TotalORE += w.OREEarned
		e.counts.Recompute(w.NumSquares)
	}

	e.history = append(e.history, w)
	if over := len(e.history) - e.opts.MaxWinHistory; over > 0 {
		e.history = append([]WinRecord(nil), e.history[over:]...)
	}

	e.totalWins++
	if w.IsFullORE {
		e.fullOREWins++
	}
	if e.totalWins%uint64(e.opts.AnalyzeEvery) == 0 {
		e.AnalyzeAndDetectStrategies()
	}
}

// participation is one wallet's combined deploys in a round.
type participation struct {
	spent   uint64 // lamports across all squares
	squares []domain.SquareIndex
}

// RecordRound records participation for every deployer of a resolved round
// and a win for every resolved winner. It returns the number of wins recorded.
func (e *Engine) RecordRound(o domain.RoundOutcome, deploys []domain.KnownDeploy) int {
	e.rounds++

	byAddr := make(map[string]*participation)
	for _, d := range deploys {
		part, ok := byAddr[d.Address]
		if !ok {
			part = &participation{}
			byAddr[d.Address] = part
		}
		part.spent += d.Amount * uint64(len(d.Squares))
		part.squares = append(part.squares, d.Squares...)
	}

	totalSOL := domain.LamportsToSOL(o.TotalDeployed)
	addrs := make([]string, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	for _, a := range addrs {
		part := byAddr[a]
		part.squares = domain.DistinctSquares(part.squares)

		p := e.book.Touch(a, o.Slot)
		n := float64(p.RoundsPlayed)
		if n < 1 {
			n = 1
		}
		p.AvgCompetitionSOL += (totalSOL - p.AvgCompetitionSOL) / n
		p.PrefersLowCompetition = p.AvgCompetitionSOL < lowCompetitionProfileSOL

		if c := len(part.squares); c > 0 && c <= domain.BoardSize {
			e.counts[c].TimesUsed++
			e.counts[c].TotalDeployed += part.spent
			e.counts.Recompute(c)
		}
	}

	type winAgg struct {
		bet, won uint64
		share    float64
	}
	wins := make(map[string]*winAgg)
	var order []string
	for _, ws := range o.ResolvedWinners {
		agg, ok := wins[ws.Address]
		if !ok {
			agg = &winAgg{}
			wins[ws.Address] = agg
			order = append(order, ws.Address)
		}
		agg.bet += ws.AmountBet
		agg.won += ws.AmountWon
		agg.share += ws.SharePct
	}

	fullORE := o.Class == domain.OutcomeFullWin || o.Class == domain.OutcomeJackpot
	for _, a := range order {
		agg := wins[a]
		var squares []domain.SquareIndex
		if part, ok := byAddr[a]; ok {
			squares = part.squares
		}
		e.RecordWin(WinRecord{
			RoundID:             o.RoundID,
			Winner:              a,
			WinningSquare:       o.WinningSquare,
			AmountBet:           agg.bet,
			AmountWon:           agg.won,
			SquaresBet:          squares,
			NumSquares:          len(squares),
			RoundTotal:          o.TotalDeployed,
			NumDeployers:        len(byAddr),
			IsMotherlode:        o.IsJackpot,
			IsFullORE:           fullORE,
			OREEarned:           estimateORE(fullORE, agg.share),
			CompetitionOnSquare: o.CompetitionOnWinner(),
			SharePct:            agg.share,
			Slot:                o.Slot,
		})
	}
	return len(order)
}

// estimateORE approximates the ORE credited to a winner: the whole reward
// when the round paid out to one wallet, otherwise its share of the square.
func estimateORE(fullORE bool, share float64) float64 {
	if fullORE {
		return 1.0
	}
	if share > 1 {
		share = 1
	}
	return share
}

// CountStats returns the square-count performance table.
func (e *Engine) CountStats() domain.CountStats {
	return e.counts
}

// History returns a copy of the win history, oldest first.
func (e *Engine) History() []WinRecord {
	out := make([]WinRecord, len(e.history))
	copy(out, e.history)
	return out
}

// TotalWins is the number of wins recorded, including ones dropped from history.
func (e *Engine) TotalWins() uint64 { return e.totalWins }

// RoundsRecorded is the number of rounds passed to RecordRound.
func (e *Engine) RoundsRecorded() uint64 { return e.rounds }

// AnalysisID identifies the most recent analysis run.
func (e *Engine) AnalysisID() string { return e.analysisID }

// AnalyzeAndDetectStrategies regenerates the strategy list from the current
// history and profiles. The result depends only on that state.
func (e *Engine) AnalyzeAndDetectStrategies() []domain.DetectedStrategy {
	var out []domain.DetectedStrategy
	for _, k := range detectorOrder {
		out = append(out, e.detect(k)...)
	}
	sortStrategies(out)

	e.strategies = out
	e.analysisID = uuid.NewString()
	e.analyzedAt = time.Now().UTC()
	e.logger.Printf("[learning] analysis %s: %d strategies from %d wins", e.analysisID, len(out), len(e.history))
	return e.Strategies()
}

func sortStrategies(s []domain.DetectedStrategy) {
	sort.SliceStable(s, func(i, j int) bool {
		si, sj := s[i].Score(), s[j].Score()
		if si != sj {
			return si > sj
		}
		if s[i].Kind != s[j].Kind {
			return s[i].Kind < s[j].Kind
		}
		return s[i].Name < s[j].Name
	})
}

// Strategies returns a copy of the latest detected strategies.
func (e *Engine) Strategies() []domain.DetectedStrategy {
	out := make([]domain.DetectedStrategy, len(e.strategies))
	for i, s := range e.strategies {
		s.PreferredSquares = append([]domain.SquareIndex(nil), s.PreferredSquares...)
		s.ExampleAddresses = append([]string(nil), s.ExampleAddresses...)
		out[i] = s
	}
	return out
}

// BestStrategy returns the top-ranked strategy, if any.
func (e *Engine) BestStrategy() (domain.DetectedStrategy, bool) {
	if len(e.strategies) == 0 {
		return domain.DetectedStrategy{}, false
	}
	return e.Strategies()[0], true
}
