package clickhouse

import (
	"context"
	"fmt"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// Events are append-only; the table is ordered by (slot, signature).
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// eventRow is the flattened column set of one ore_events row.
type eventRow struct {
	signature     string
	slot          int64
	blockTime     *time.Time
	kind          string
	signer        string
	authority     string
	success       bool
	amount        uint64
	squareMask    uint64
	squareCount   uint8
	roundID       uint64
	winningSquare *uint8
	motherlode    bool
	resultSource  string
	gap           bool
	decodeErr     string
}

func flattenEvent(ev domain.ParsedEvent) eventRow {
	r := eventRow{
		signature: ev.Signature,
		slot:      ev.Slot,
		blockTime: ev.BlockTime,
		kind:      ev.Kind.String(),
		signer:    ev.Signer,
		authority: ev.Authority,
		success:   ev.Success,
		gap:       ev.Gap,
		decodeErr: ev.DecodeErr,
	}

	in := ev.Instruction
	switch {
	case in.Deploy != nil:
		r.amount = in.Deploy.AmountLamports
		r.squareMask = uint64(in.Deploy.Mask)
		r.squareCount = uint8(len(in.Deploy.Squares))
	case in.Automate != nil:
		r.amount = in.Automate.AmountLamports
		r.squareMask = in.Automate.Mask
	case in.Deposit != nil:
		r.amount = in.Deposit.Amount
	case in.Amount != nil:
		r.amount = in.Amount.Amount
	}

	if res := ev.RoundResult; res != nil {
		sq := uint8(res.WinningSquare)
		r.roundID = res.RoundID
		r.winningSquare = &sq
		r.motherlode = res.Motherlode
		r.resultSource = string(res.Source)
	}
	return r
}

// InsertEvents appends events in one batch.
func (s *EventStore) InsertEvents(ctx context.Context, events []domain.ParsedEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer observe("insert_events", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ore_events (
			signature, slot, block_time, kind, signer, authority, success,
			amount, square_mask, square_count,
			round_id, winning_square, motherlode, result_source,
			gap, decode_err
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		r := flattenEvent(ev)
		err = batch.Append(
			r.signature, r.slot, r.blockTime, r.kind, r.signer, r.authority, r.success,
			r.amount, r.squareMask, r.squareCount,
			r.roundID, r.winningSquare, r.motherlode, r.resultSource,
			r.gap, r.decodeErr,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// KindCount is the number of archived events of one instruction kind.
type KindCount struct {
	Kind     string
	Events   uint64
	Failed   uint64
	Gaps     uint64
	Lamports uint64
}

// CountByKind aggregates the archive by instruction kind, busiest first.
func (s *EventStore) CountByKind(ctx context.Context) (out []KindCount, err error) {
	defer observe("count_events_by_kind", time.Now(), &err)

	query := `
		SELECT
			kind,
			count() AS events,
			countIf(NOT success) AS failed,
			countIf(gap) AS gaps,
			sum(amount) AS lamports
		FROM ore_events
		GROUP BY kind
		ORDER BY events DESC, kind ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query events by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Events, &kc.Failed, &kc.Gaps, &kc.Lamports); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		out = append(out, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kind counts: %w", err)
	}
	return out, nil
}

// DeployVolumeBySquare sums successful deploy amounts onto every square a
// deploy covered, in lamports. This matches SquareStat.TotalDeployed.
func (s *EventStore) DeployVolumeBySquare(ctx context.Context) (out [domain.BoardSize]uint64, err error) {
	defer observe("deploy_volume_by_square", time.Now(), &err)

	query := `
		SELECT
			toUInt8(sq) AS square,
			toUInt64(sum(amount)) AS lamports
		FROM ore_events
		ARRAY JOIN range(25) AS sq
		WHERE kind = 'Deploy' AND success AND bitTest(square_mask, sq)
		GROUP BY square
		ORDER BY square
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return out, fmt.Errorf("query deploy volume: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			square   uint8
			lamports uint64
		)
		if err := rows.Scan(&square, &lamports); err != nil {
			return out, fmt.Errorf("scan deploy volume: %w", err)
		}
		if int(square) < domain.BoardSize {
			out[square] = lamports
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate deploy volume: %w", err)
	}
	return out, nil
}
