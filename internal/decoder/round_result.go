package decoder

import (
	"strconv"
	"strings"
	"unicode"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

// Reset event layout inside return data:
// disc(8) round_id(8) start_slot(8) end_slot(8) winning_square(8) top_miner_reward(8) motherlode(8) ...
const (
	resetEventMinLen       = 48
	resetEventRoundOffset  = 8
	resetEventSquareOffset = 32
	resetEventMotherOffset = 48
)

// DecodeRoundResult extracts a round completion from transaction metadata.
// Structured return data is checked first, then program log lines.
// It returns false when neither source carries a result; callers then treat
// the round as completed with an unknown outcome.
func DecodeRoundResult(meta *solana.TransactionMeta) (domain.RoundResultFields, bool) {
	if meta == nil {
		return domain.RoundResultFields{}, false
	}
	if r, ok := roundResultFromReturnData(meta.ReturnData); ok {
		return r, true
	}
	return roundResultFromLogs(meta.LogMessages)
}

func roundResultFromReturnData(rd *solana.ReturnData) (domain.RoundResultFields, bool) {
	if rd == nil || (rd.ProgramID != "" && rd.ProgramID != domain.OREProgramID) {
		return domain.RoundResultFields{}, false
	}
	data, err := rd.Bytes()
	if err != nil || len(data) < resetEventMinLen {
		return domain.RoundResultFields{}, false
	}

	raw := readUint64LE(data, resetEventSquareOffset)
	if raw >= domain.BoardSize {
		return domain.RoundResultFields{}, false
	}

	r := domain.RoundResultFields{
		RoundID:       readUint64LE(data, resetEventRoundOffset),
		WinningSquare: domain.SquareIndex(raw),
		Source:        domain.ResultFromReturnData,
	}
	if len(data) >= resetEventMotherOffset+8 {
		r.Motherlode = readUint64LE(data, resetEventMotherOffset) > 0
	}
	return r, true
}

// roundResultFromLogs scans for a "winning square" line and takes the first
// numeric token below 25. Log lines never carry the round id, so RoundID is 0.
func roundResultFromLogs(logs []string) (domain.RoundResultFields, bool) {
	for _, line := range logs {
		if !strings.Contains(line, "winning_square") && !strings.Contains(line, "Winning square") {
			continue
		}
		for _, word := range strings.Fields(line) {
			token := strings.TrimFunc(word, func(r rune) bool { return !unicode.IsDigit(r) })
			n, err := strconv.ParseUint(token, 10, 8)
			if err != nil || n >= domain.BoardSize {
				continue
			}
			return domain.RoundResultFields{
				WinningSquare: domain.SquareIndex(n),
				Motherlode:    strings.Contains(line, "motherlode") || strings.Contains(line, "MOTHERLODE"),
				Source:        domain.ResultFromLogs,
			}, true
		}
	}
	return domain.RoundResultFields{}, false
}
