package domain

import "time"

// ParsedEvent is one invocation of the ORE program inside a transaction.
// Events are created by the classifier and never mutated afterwards.
type ParsedEvent struct {
	Signature string
	Slot      int64
	BlockTime *time.Time
	Signer    string
	Authority string // miner authority for deploys made on someone's behalf
	Accounts  []string
	Success   bool

	Kind        InstructionKind
	Instruction DecodedInstruction

	// RoundResult is set for Reset events whose outcome could be decoded.
	RoundResult *RoundResultFields
	// CompletionUnknown marks a Reset whose outcome could not be decoded.
	CompletionUnknown bool

	// Gap marks an ORE instruction whose payload could not be decoded.
	Gap       bool
	DecodeErr string
}

// Participant returns the wallet the event is attributed to.
func (e ParsedEvent) Participant() string {
	if e.Authority != "" {
		return e.Authority
	}
	return e.Signer
}

// DeployAmount returns the deploy amount and squares, or false for non-deploys.
func (e ParsedEvent) DeployAmount() (uint64, []SquareIndex, bool) {
	if e.Kind != KindDeploy || e.Instruction.Deploy == nil {
		return 0, nil, false
	}
	return e.Instruction.Deploy.AmountLamports, e.Instruction.Deploy.Squares, true
}
