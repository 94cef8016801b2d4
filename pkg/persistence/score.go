package persistence

import (
	"bytes"

	"kipdb/pkg/command"
	"kipdb/pkg/dberrors"
)

// Score is the closed key range [Start, End] covered by a sorted batch or
// an SSTable. Start is the first key written, End the last. Scores are
// immutable once built; compaction uses them for fast region overlap checks.
type Score struct {
	Start []byte `msgpack:"s"`
	End   []byte `msgpack:"e"`
}

// ScoreFromBatch builds the score of a non-empty sorted batch. A singleton
// batch yields Start == End.
func ScoreFromBatch(cmds []*command.Command) (Score, error) {
	if len(cmds) == 0 {
		return Score{}, dberrors.ErrDataEmpty
	}
	return Score{
		Start: cmds[0].KeyClone(),
		End:   cmds[len(cmds)-1].KeyClone(),
	}, nil
}

// FuseScores merges scores into one covering range: the minimum Start and
// the maximum End of all inputs.
func FuseScores(scores []Score) (Score, error) {
	if len(scores) == 0 {
		return Score{}, dberrors.ErrDataEmpty
	}

	fused := Score{
		Start: bytes.Clone(scores[0].Start),
		End:   bytes.Clone(scores[0].End),
	}
	for _, sc := range scores[1:] {
		if bytes.Compare(sc.Start, fused.Start) < 0 {
			fused.Start = bytes.Clone(sc.Start)
		}
		if bytes.Compare(sc.End, fused.End) > 0 {
			fused.End = bytes.Clone(sc.End)
		}
	}
	return fused, nil
}

// Meets reports whether the two ranges intersect. The boundary handling is
// deliberately asymmetric: End is the last real key, not an exclusive
// bound, and a zero-width neighbour at target.Start only touches unless it
// lies strictly inside. Callers rely on this exact predicate.
func (s Score) Meets(target Score) bool {
	return (bytes.Compare(s.Start, target.Start) <= 0 && bytes.Compare(s.End, target.Start) > 0) ||
		(bytes.Compare(s.Start, target.End) < 0 && bytes.Compare(s.End, target.End) >= 0)
}

// InRange reports whether key falls inside the closed range.
func (s Score) InRange(key []byte) bool {
	return bytes.Compare(s.Start, key) <= 0 && bytes.Compare(key, s.End) <= 0
}

// TableScores collects the scores of a group of tables.
func TableScores(tables []*SsTable) []Score {
	scores := make([]Score, 0, len(tables))
	for _, t := range tables {
		scores = append(scores, t.GetScore())
	}
	return scores
}

// FuseTableScores merges the scores of a group of tables into one.
func FuseTableScores(tables []*SsTable) (Score, error) {
	return FuseScores(TableScores(tables))
}
