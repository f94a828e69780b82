package domain

import "fmt"

// InstructionKind is the closed set of ORE program instructions.
// Values equal the on-chain discriminator byte, except KindUnknown.
type InstructionKind uint8

const (
	KindAutomate      InstructionKind = 0
	KindCheckpoint    InstructionKind = 2
	KindClaimSOL      InstructionKind = 3
	KindClaimORE      InstructionKind = 4
	KindClose         InstructionKind = 5
	KindDeploy        InstructionKind = 6
	KindLog           InstructionKind = 8
	KindReset         InstructionKind = 9
	KindDeposit       InstructionKind = 10
	KindWithdraw      InstructionKind = 11
	KindClaimYield    InstructionKind = 12
	KindBuyback       InstructionKind = 13
	KindWrap          InstructionKind = 14
	KindSetAdmin      InstructionKind = 15
	KindNewVar        InstructionKind = 19
	KindReloadSOL     InstructionKind = 21
	KindCompoundYield InstructionKind = 22
	KindBury          InstructionKind = 24
	KindLiq           InstructionKind = 25
	KindUnknown       InstructionKind = 255
)

var kindNames = map[InstructionKind]string{
	KindAutomate:      "Automate",
	KindCheckpoint:    "Checkpoint",
	KindClaimSOL:      "ClaimSOL",
	KindClaimORE:      "ClaimORE",
	KindClose:         "Close",
	KindDeploy:        "Deploy",
	KindLog:           "Log",
	KindReset:         "Reset",
	KindDeposit:       "Deposit",
	KindWithdraw:      "Withdraw",
	KindClaimYield:    "ClaimYield",
	KindBuyback:       "Buyback",
	KindWrap:          "Wrap",
	KindSetAdmin:      "SetAdmin",
	KindNewVar:        "NewVar",
	KindReloadSOL:     "ReloadSOL",
	KindCompoundYield: "CompoundYield",
	KindBury:          "Bury",
	KindLiq:           "Liq",
	KindUnknown:       "Unknown",
}

// KindFromDiscriminator maps a discriminator byte to its kind.
// Unrecognised bytes map to KindUnknown.
func KindFromDiscriminator(b byte) InstructionKind {
	k := InstructionKind(b)
	if _, ok := kindNames[k]; ok {
		return k
	}
	return KindUnknown
}

// ParseInstructionKind is the inverse of String.
func ParseInstructionKind(s string) (InstructionKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown instruction kind %q", s)
}

// AllInstructionKinds lists every known kind in discriminator order, Unknown last.
func AllInstructionKinds() []InstructionKind {
	return []InstructionKind{
		KindAutomate, KindCheckpoint, KindClaimSOL, KindClaimORE, KindClose,
		KindDeploy, KindLog, KindReset, KindDeposit, KindWithdraw, KindClaimYield,
		KindBuyback, KindWrap, KindSetAdmin, KindNewVar, KindReloadSOL,
		KindCompoundYield, KindBury, KindLiq, KindUnknown,
	}
}

func (k InstructionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("InstructionKind(%d)", uint8(k))
}

// IsClaim reports whether the kind pays out rewards to the signer.
func (k InstructionKind) IsClaim() bool {
	return k == KindClaimSOL || k == KindClaimORE || k == KindClaimYield
}

// DecodedInstruction is an ORE instruction with its typed fields.
// Exactly one field pointer is set for kinds that carry a payload.
type DecodedInstruction struct {
	Kind          InstructionKind
	Discriminator byte

	Deploy   *DeployFields
	Automate *AutomateFields
	Deposit  *DepositFields
	Amount   *AmountFields // Withdraw, ClaimYield
	Reset    *ResetFields
}

// DeployFields is the payload of a Deploy instruction.
type DeployFields struct {
	AmountLamports uint64
	Mask           uint32
	Squares        []SquareIndex
	DroppedBits    []uint8 // mask bits >= 25, never indexed
}

// AutomateFields is the payload of an Automate instruction.
type AutomateFields struct {
	AmountLamports  uint64
	DepositLamports uint64
	FeeLamports     uint64
	Mask            uint64
	Strategy        uint8
	Reload          bool
}

// DepositFields is the payload of a stake Deposit instruction.
type DepositFields struct {
	Amount      uint64 // ORE grams
	CompoundFee uint64
}

// AmountFields carries the single amount of Withdraw and ClaimYield.
type AmountFields struct {
	Amount uint64
}

// ResetFields is the legacy Reset payload. WinningSquare is nil when the
// encoded value is outside the board.
type ResetFields struct {
	RoundID       uint64
	WinningSquare *SquareIndex
	Motherlode    bool
}

// ResultSource names where a round result was read from.
type ResultSource string

const (
	ResultFromReturnData  ResultSource = "return_data"
	ResultFromLogs        ResultSource = "logs"
	ResultFromInstruction ResultSource = "instruction"
	ResultFromAccount     ResultSource = "account"
)

// RoundResultFields is a decoded round completion.
// RoundID 0 means the source did not carry a round id and the caller
// must supply one from board state.
type RoundResultFields struct {
	RoundID       uint64
	WinningSquare SquareIndex
	Motherlode    bool
	Source        ResultSource
}

// Resolved reports whether the round id is known.
func (r RoundResultFields) Resolved() bool {
	return r.RoundID != 0
}
