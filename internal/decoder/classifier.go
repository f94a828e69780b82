package decoder

import (
	"log"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	ProgramID string      // defaults to domain.OREProgramID
	Logger    *log.Logger // defaults to log.Default()
}

// Classifier turns fetched transactions into ParsedEvents.
type Classifier struct {
	programID string
	logger    *log.Logger
}

// NewClassifier creates a classifier for the ORE program.
func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.ProgramID == "" {
		opts.ProgramID = domain.OREProgramID
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Classifier{programID: opts.ProgramID, logger: opts.Logger}
}

// Classify finds the first top-level instruction invoking the program and
// builds its event. It returns false when the transaction never touches the
// program. A malformed payload still yields an event with KindUnknown and Gap
// set, so downstream consumers see the hole.
func (c *Classifier) Classify(tx *solana.Transaction) (domain.ParsedEvent, bool) {
	if tx == nil || tx.Message == nil {
		return domain.ParsedEvent{}, false
	}
	msg := tx.Message

	for _, cix := range msg.Instructions {
		pid, ok := msg.ProgramID(cix)
		if !ok || pid != c.programID {
			continue
		}

		ev := domain.ParsedEvent{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			Accounts:  msg.ResolveAccounts(cix),
			Success:   tx.Succeeded(),
		}
		if tx.BlockTime > 0 {
			bt := time.Unix(tx.BlockTime, 0).UTC()
			ev.BlockTime = &bt
		}
		if len(msg.AccountKeys) > 0 {
			ev.Signer = msg.AccountKeys[0]
		}

		data, err := cix.DecodeData()
		if err == nil {
			ev.Instruction, err = decodeData(data)
		}
		if err != nil {
			c.logger.Printf("[classifier] gap in %s: %v", tx.Signature, err)
			ev.Kind = domain.KindUnknown
			ev.Instruction = domain.DecodedInstruction{Kind: domain.KindUnknown}
			ev.Gap = true
			ev.DecodeErr = err.Error()
			return ev, true
		}
		ev.Kind = ev.Instruction.Kind

		switch ev.Kind {
		case domain.KindDeploy:
			// accounts: [signer, authority, automation, board, miner, round, ...]
			if len(ev.Accounts) > 1 {
				ev.Authority = ev.Accounts[1]
			}
			if d := ev.Instruction.Deploy; d != nil && len(d.DroppedBits) > 0 {
				c.logger.Printf("[classifier] %s: dropped mask bits %v", tx.Signature, d.DroppedBits)
			}
		case domain.KindReset:
			c.enrichReset(&ev, tx.Meta)
		}

		return ev, true
	}

	return domain.ParsedEvent{}, false
}

// enrichReset attaches the round result, preferring metadata over the legacy
// instruction payload.
func (c *Classifier) enrichReset(ev *domain.ParsedEvent, meta *solana.TransactionMeta) {
	if r, ok := DecodeRoundResult(meta); ok {
		ev.RoundResult = &r
		return
	}
	if legacy := ev.Instruction.Reset; legacy != nil && legacy.WinningSquare != nil {
		ev.RoundResult = &domain.RoundResultFields{
			RoundID:       legacy.RoundID,
			WinningSquare: *legacy.WinningSquare,
			Motherlode:    legacy.Motherlode,
			Source:        domain.ResultFromInstruction,
		}
		return
	}
	ev.CompletionUnknown = true
}
