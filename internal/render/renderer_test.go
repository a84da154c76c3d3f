package render

import (
	"context"
	"fmt"
	"testing"

	"github.com/courtline/courtline/internal/game"
	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/platform/errors"
	"github.com/courtline/courtline/internal/platform/metrics"
)

type scriptedGenerator struct {
	failOrdinals map[int]error
	calls        int
}

func (g *scriptedGenerator) Generate(_ context.Context, req Request) (Response, error) {
	g.calls++
	if err, ok := g.failOrdinals[req.Block.Ordinal]; ok {
		return Response{}, err
	}
	return Response{Narrative: fmt.Sprintf("narrative for block %d", req.Block.Ordinal)}, nil
}

func ref(v int64) *int64 { return &v }

func fixtureGame() ([]game.Event, []block.Block) {
	events := make([]game.Event, 0, 10)
	home := 0
	for i := 0; i < 10; i++ {
		home += 2
		events = append(events, game.Event{
			Period: 1, Index: i, Clock: "8:00", Description: "layup",
			PlayerRef: ref(int64(40 + i%2)), HomeScore: home,
		})
	}
	blocks := make([]block.Block, 0, 5)
	for i := 0; i < 5; i++ {
		blocks = append(blocks, block.Block{
			Ordinal:     i,
			StartIndex:  i * 2,
			EndIndex:    i*2 + 1,
			KeyEventIDs: []int{i * 2},
			ScoreBefore: block.Score{Home: i * 4},
			ScoreAfter:  block.Score{Home: i*4 + 4},
		})
	}
	return events, blocks
}

func TestRenderAllBlocks(t *testing.T) {
	events, blocks := fixtureGame()
	r := NewRenderer(&scriptedGenerator{}, metrics.New())

	result, err := r.Render(context.Background(), "game-1", events, blocks)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(result.Issues) != 0 {
		t.Fatalf("issues = %v, want none", result.Issues)
	}
	for i, b := range result.Blocks {
		if b.Narrative == nil {
			t.Fatalf("block %d narrative is nil", i)
		}
	}
	if len(result.States) != len(blocks) {
		t.Fatalf("states = %d, want %d", len(result.States), len(blocks))
	}
}

func TestRenderDegradesFailedBlockToNull(t *testing.T) {
	events, blocks := fixtureGame()
	gen := &scriptedGenerator{failOrdinals: map[int]error{
		3: fmt.Errorf("upstream timeout"),
	}}
	r := NewRenderer(gen, metrics.New())

	result, err := r.Render(context.Background(), "game-1", events, blocks)
	if err != nil {
		t.Fatalf("render must not fail the run: %v", err)
	}
	if result.Blocks[3].Narrative != nil {
		t.Fatalf("block 3 narrative = %q, want nil", *result.Blocks[3].Narrative)
	}
	for _, i := range []int{0, 1, 2, 4} {
		if result.Blocks[i].Narrative == nil {
			t.Fatalf("block %d narrative is nil, want text", i)
		}
	}
	if len(result.Issues) != 1 || result.Issues[0].BlockOrdinal != 3 {
		t.Fatalf("issues = %+v, want one issue for block 3", result.Issues)
	}
	if result.Issues[0].Code != string(errors.CodeRenderTransient) {
		t.Fatalf("issue code = %q, want render transient", result.Issues[0].Code)
	}
}

func TestRenderRetriesTransientFailures(t *testing.T) {
	events, blocks := fixtureGame()
	gen := &scriptedGenerator{failOrdinals: map[int]error{
		2: fmt.Errorf("flaky"),
	}}
	r := NewRenderer(gen, metrics.New())

	if _, err := r.Render(context.Background(), "game-1", events, blocks); err != nil {
		t.Fatalf("render: %v", err)
	}
	// Four clean blocks plus three attempts for the failing one.
	if gen.calls != 4+maxAttempts {
		t.Fatalf("generator calls = %d, want %d", gen.calls, 4+maxAttempts)
	}
}

func TestRenderEmptyNarrativeDegrades(t *testing.T) {
	events, blocks := fixtureGame()
	r := NewRenderer(generatorFunc(func(context.Context, Request) (Response, error) {
		return Response{Narrative: "   "}, nil
	}), metrics.New())

	result, err := r.Render(context.Background(), "game-1", events, blocks)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(result.Issues) != len(blocks) {
		t.Fatalf("issues = %d, want %d", len(result.Issues), len(blocks))
	}
	for _, issue := range result.Issues {
		if issue.Code != string(errors.CodeRenderEmpty) {
			t.Fatalf("issue code = %q, want render empty", issue.Code)
		}
	}
}

func TestRenderStopsOnCancel(t *testing.T) {
	events, blocks := fixtureGame()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRenderer(&scriptedGenerator{}, metrics.New())

	_, err := r.Render(ctx, "game-1", events, blocks)
	if errors.CodeOf(err) != errors.CodeRunCanceled {
		t.Fatalf("code = %v, want run canceled", errors.CodeOf(err))
	}
}

func TestRenderNeverExposesFutureBlocks(t *testing.T) {
	events, blocks := fixtureGame()
	var seen []int
	r := NewRenderer(generatorFunc(func(_ context.Context, req Request) (Response, error) {
		seen = append(seen, req.State.BlocksRendered)
		if req.Block.Narrative != nil {
			return Response{}, fmt.Errorf("request leaked narrative text")
		}
		return Response{Narrative: "text"}, nil
	}), metrics.New())

	if _, err := r.Render(context.Background(), "game-1", events, blocks); err != nil {
		t.Fatalf("render: %v", err)
	}
	for k, rendered := range seen {
		if rendered != k {
			t.Fatalf("block %d saw %d prior blocks, want %d", k, rendered, k)
		}
	}
}

type generatorFunc func(context.Context, Request) (Response, error)

func (f generatorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
