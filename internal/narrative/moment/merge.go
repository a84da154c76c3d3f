package moment

// typeWeights ranks how much narrative weight each moment type carries.
// Higher survives merging longer.
var typeWeights = map[Type]int{
	TypeFlip:           10,
	TypeHighImpact:     9,
	TypeClosingControl: 8,
	TypeTie:            7,
	TypeLeadBuild:      6,
	TypeCut:            6,
	TypeOpener:         3,
	TypeNeutral:        1,
}

// weight scores a moment from its type, event count, and score swing. All
// integer arithmetic so merge order is exactly reproducible.
func weight(m Moment) int {
	return typeWeights[m.Type]*100 + m.EventCount()*10 + m.Swing*5
}

// mergeToBudget iteratively merges the adjacent pair with the lowest combined
// weight until the count is within budget. When two pairs tie, the leftmost
// pair merges first; that rule is deliberate and pinned by tests.
func mergeToBudget(moments []Moment, budget int) ([]Moment, []Trace) {
	if budget <= 0 || len(moments) <= budget {
		return moments, nil
	}

	merged := make([]Moment, len(moments))
	copy(merged, moments)
	var traces []Trace

	for len(merged) > budget {
		best := -1
		bestWeight := 0
		for i := 0; i+1 < len(merged); i++ {
			combined := weight(merged[i]) + weight(merged[i+1])
			if best == -1 || combined < bestWeight {
				best = i
				bestWeight = combined
			}
		}

		left, right := merged[best], merged[best+1]
		survivor := mergePair(left, right)
		traces = append(traces, Trace{
			Action:        "merge",
			Type:          survivor.Type,
			StartIndex:    left.StartIndex,
			AbsorbedStart: right.StartIndex,
			Weight:        bestWeight,
		})

		merged[best] = survivor
		merged = append(merged[:best+1], merged[best+2:]...)
	}
	return merged, traces
}

// mergePair folds two adjacent moments into one span. The heavier type wins;
// on equal type weight the earlier moment's identity is kept unless the later
// one is a flip or high-impact moment.
func mergePair(left, right Moment) Moment {
	survivor := left
	switch {
	case typeWeights[right.Type] > typeWeights[left.Type]:
		survivor = right
	case typeWeights[right.Type] == typeWeights[left.Type] &&
		(right.Type == TypeFlip || right.Type == TypeHighImpact):
		survivor = right
	}
	return Moment{
		Type:       survivor.Type,
		StartIndex: left.StartIndex,
		EndIndex:   right.EndIndex,
		Swing:      left.Swing + right.Swing,
		Reason:     survivor.Reason,
	}
}
