package accounts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

// SlotDuration approximates Solana's slot time.
const SlotDuration = 400 * time.Millisecond

// LiveRound is a read-only view of the round currently accepting deploys.
type LiveRound struct {
	RoundID        uint64
	StartSlot      uint64
	EndSlot        uint64
	CurrentSlot    uint64
	SlotsRemaining uint64
	TimeRemaining  time.Duration
	Intermission   bool // round ended, waiting for reset

	Deployed      [domain.BoardSize]uint64
	Miners        [domain.BoardSize]uint64
	TotalDeployed uint64
	TotalMiners   uint64
	TotalVaulted  uint64
	Motherlode    uint64

	TopMiner      string
	WinningSquare *domain.SquareIndex // set once revealed during intermission
}

// EmptySquares lists squares nobody has deployed to yet.
func (l *LiveRound) EmptySquares() []domain.SquareIndex {
	var out []domain.SquareIndex
	for i, v := range l.Deployed {
		if v == 0 {
			out = append(out, domain.SquareIndex(i))
		}
	}
	return out
}

// Share returns square s's fraction of the round total.
func (l *LiveRound) Share(s domain.SquareIndex) float64 {
	if l.TotalDeployed == 0 || !s.Valid() {
		return 0
	}
	return float64(l.Deployed[s]) / float64(l.TotalDeployed)
}

// RoundSummary is a completed round reduced to what history consumers need.
type RoundSummary struct {
	RoundID        uint64
	WinningSquare  domain.SquareIndex
	Motherlode     bool
	Deployed       [domain.BoardSize]uint64
	TotalDeployed  uint64
	TotalMiners    uint64
	TotalVaulted   uint64
	TopMiner       string
	TopMinerReward uint64 // ORE grams
}

// Reader fetches and decodes ORE accounts over RPC.
type Reader struct {
	rpc       solana.RPCClient
	programID string

	board    string
	treasury string

	mu        sync.RWMutex
	completed map[uint64]RoundSummary
}

// NewReader creates a reader for programID (domain.OREProgramID when empty).
func NewReader(rpc solana.RPCClient, programID string) (*Reader, error) {
	if programID == "" {
		programID = domain.OREProgramID
	}
	board, err := BoardAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive board address: %w", err)
	}
	treasury, err := TreasuryAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive treasury address: %w", err)
	}
	return &Reader{
		rpc:       rpc,
		programID: programID,
		board:     board,
		treasury:  treasury,
		completed: make(map[uint64]RoundSummary),
	}, nil
}

func (r *Reader) fetch(ctx context.Context, kind, address string) ([]byte, error) {
	info, err := r.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get %s account: %w", kind, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotFound, kind, address)
	}
	data, err := info.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s account: %w", kind, err)
	}
	return data, nil
}

// Board reads the board singleton.
func (r *Reader) Board(ctx context.Context) (*Board, error) {
	data, err := r.fetch(ctx, "board", r.board)
	if err != nil {
		return nil, err
	}
	return ParseBoard(data)
}

// CurrentRoundID returns the round the board is accepting deploys for.
func (r *Reader) CurrentRoundID(ctx context.Context) (uint64, error) {
	b, err := r.Board(ctx)
	if err != nil {
		return 0, err
	}
	return b.RoundID, nil
}

// Round reads round id.
func (r *Reader) Round(ctx context.Context, id uint64) (*Round, error) {
	addr, err := RoundAddress(r.programID, id)
	if err != nil {
		return nil, fmt.Errorf("derive round address: %w", err)
	}
	data, err := r.fetch(ctx, "round", addr)
	if err != nil {
		return nil, err
	}
	return ParseRound(data)
}

// RoundResult reads round id and returns its revealed result, or false
// while the slot hash is unset.
func (r *Reader) RoundResult(ctx context.Context, id uint64) (domain.RoundResultFields, bool, error) {
	round, err := r.Round(ctx, id)
	if err != nil {
		return domain.RoundResultFields{}, false, err
	}
	res, ok := round.RoundResult()
	return res, ok, nil
}

// Treasury reads the treasury singleton.
func (r *Reader) Treasury(ctx context.Context) (*Treasury, error) {
	data, err := r.fetch(ctx, "treasury", r.treasury)
	if err != nil {
		return nil, err
	}
	return ParseTreasury(data)
}

// Miner reads the miner account of authority.
func (r *Reader) Miner(ctx context.Context, authority string) (*Miner, error) {
	addr, err := MinerAddress(r.programID, authority)
	if err != nil {
		return nil, fmt.Errorf("derive miner address: %w", err)
	}
	data, err := r.fetch(ctx, "miner", addr)
	if err != nil {
		return nil, err
	}
	return ParseMiner(data)
}

// LiveRound assembles the current round view from the board, the round
// account and the current slot.
func (r *Reader) LiveRound(ctx context.Context) (*LiveRound, error) {
	board, err := r.Board(ctx)
	if err != nil {
		return nil, err
	}
	slot, err := r.rpc.GetSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	round, err := r.Round(ctx, board.RoundID)
	if err != nil {
		return nil, err
	}

	live := &LiveRound{
		RoundID:      board.RoundID,
		StartSlot:    board.StartSlot,
		EndSlot:      board.EndSlot,
		CurrentSlot:  uint64(slot),
		Deployed:     round.Deployed,
		Miners:       round.Count,
		TotalVaulted: round.TotalVaulted,
		Motherlode:   round.Motherlode,
		TopMiner:     round.TopMiner,
	}
	if live.CurrentSlot < board.EndSlot {
		live.SlotsRemaining = board.EndSlot - live.CurrentSlot
		live.TimeRemaining = time.Duration(live.SlotsRemaining) * SlotDuration
	} else {
		live.Intermission = true
		if sq, ok := round.WinningSquare(); ok {
			live.WinningSquare = &sq
		}
	}
	for i := range live.Deployed {
		live.TotalDeployed += live.Deployed[i]
		live.TotalMiners += live.Miners[i]
	}
	return live, nil
}

// RecentRounds returns up to n completed rounds before the live one, newest
// first. Completed rounds are immutable and cached. Unrevealed rounds are
// skipped; the walk stops at the first round that cannot be read.
func (r *Reader) RecentRounds(ctx context.Context, n int) ([]RoundSummary, error) {
	board, err := r.Board(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RoundSummary, 0, n)
	for offset := uint64(1); offset <= uint64(n) && offset <= board.RoundID; offset++ {
		id := board.RoundID - offset

		r.mu.RLock()
		cached, ok := r.completed[id]
		r.mu.RUnlock()
		if ok {
			out = append(out, cached)
			continue
		}

		round, err := r.Round(ctx, id)
		if err != nil {
			break
		}
		sq, ok := round.WinningSquare()
		if !ok {
			continue
		}
		s := RoundSummary{
			RoundID:        id,
			WinningSquare:  sq,
			Motherlode:     round.IsMotherlode(),
			Deployed:       round.Deployed,
			TotalDeployed:  round.TotalDeployed,
			TotalMiners:    round.TotalMiners,
			TotalVaulted:   round.TotalVaulted,
			TopMiner:       round.TopMiner,
			TopMinerReward: round.TopMinerReward,
		}
		r.mu.Lock()
		r.completed[id] = s
		r.mu.Unlock()
		out = append(out, s)
	}
	return out, nil
}
