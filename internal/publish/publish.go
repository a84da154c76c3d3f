// Package publish serializes the finalized narrative artifact, hashes it,
// and writes content-addressed payload versions with a single active version
// per game.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"log"

	"github.com/courtline/courtline/internal/narrative/block"
	"github.com/courtline/courtline/internal/narrative/chapter"
	"github.com/courtline/courtline/internal/narrative/drama"
	"github.com/courtline/courtline/internal/narrative/moment"
	"github.com/courtline/courtline/internal/platform/errors"
	"github.com/courtline/courtline/internal/platform/id"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/render"
	"github.com/courtline/courtline/internal/storage"
)

// Timeline is the structural half of the artifact: chapters and rendered
// blocks in game order.
type Timeline struct {
	Chapters []chapter.Chapter `json:"chapters"`
	Blocks   []block.Block     `json:"blocks"`
}

// Summary is the compact rendered view of the game.
type Summary struct {
	FinalScore   block.Score          `json:"final_score"`
	Narrative    []string             `json:"narrative"`
	DramaScores  []drama.ChapterScore `json:"drama_scores"`
	RenderIssues []render.Issue       `json:"render_issues"`
}

// Payload is the versioned artifact body. It contains no timestamps or run
// identifiers: the same segmentation and rendering always serialize to the
// same bytes, which is what makes re-publication idempotent.
type Payload struct {
	GameID   string          `json:"game_id"`
	Sport    string          `json:"sport"`
	Timeline Timeline        `json:"timeline"`
	Moments  []moment.Moment `json:"moments"`
	Summary  Summary         `json:"summary"`
}

// Outcome reports what publishing did.
type Outcome struct {
	VersionID string
	Version   int
	Hash      string
	// Noop is true when the payload hash matched the active version and no
	// new row was written.
	Noop bool
}

// MomentDiff is the structural diff persisted alongside a new version:
// moment ordinals added, removed, or changed relative to the previous active
// version.
type MomentDiff struct {
	Added   []int `json:"added"`
	Removed []int `json:"removed"`
	Changed []int `json:"changed"`
}

// Publisher writes payload versions.
type Publisher struct {
	versions storage.VersionStore
	metrics  *metrics.Manager
}

// New builds a publisher over a version store.
func New(versions storage.VersionStore, m *metrics.Manager) *Publisher {
	return &Publisher{versions: versions, metrics: m}
}

// Canonical serializes a payload with stable key ordering.
func Canonical(payload Payload) ([]byte, error) {
	return json.Marshal(payload)
}

// Hash returns the hex content hash of canonical payload bytes.
func Hash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Publish writes the payload as the game's new active version. When the
// content hash matches the current active version the call is an idempotent
// no-op. Otherwise the insert and the active-pointer flip commit in one
// transaction, together with a structural diff against the prior version.
func (p *Publisher) Publish(ctx context.Context, runID string, payload Payload) (Outcome, error) {
	canonical, err := Canonical(payload)
	if err != nil {
		return Outcome{}, errors.Wrap(errors.CodePersistence, "serialize payload", err)
	}
	hash := Hash(canonical)

	priorVersion := 0
	var priorPayload *Payload
	active, err := p.versions.GetActiveVersion(ctx, payload.GameID)
	switch {
	case err == nil:
		if active.Hash == hash {
			p.metrics.VersionNoop()
			log.Printf("publish: game %s unchanged at version %d, no new version", payload.GameID, active.Version)
			return Outcome{VersionID: active.ID, Version: active.Version, Hash: hash, Noop: true}, nil
		}
		priorVersion = active.Version
		var decoded Payload
		if err := json.Unmarshal(active.Payload, &decoded); err != nil {
			return Outcome{}, errors.Wrap(errors.CodePersistence, "decode prior payload", err)
		}
		priorPayload = &decoded
	case stderrors.Is(err, storage.ErrNotFound):
	default:
		return Outcome{}, errors.Wrap(errors.CodePersistence, "read active version", err)
	}

	diff, err := json.Marshal(diffMoments(priorPayload, payload))
	if err != nil {
		return Outcome{}, errors.Wrap(errors.CodePersistence, "serialize diff", err)
	}

	versionID, err := id.NewID()
	if err != nil {
		return Outcome{}, errors.Wrap(errors.CodePersistence, "generate version id", err)
	}
	version := storage.Version{
		ID:      versionID,
		GameID:  payload.GameID,
		RunID:   runID,
		Version: priorVersion + 1,
		Hash:    hash,
		Payload: canonical,
		Diff:    diff,
	}
	if err := p.versions.PublishVersion(ctx, version, priorVersion); err != nil {
		if stderrors.Is(err, storage.ErrVersionConflict) {
			return Outcome{}, errors.Wrap(errors.CodeVersionConflict, "active version moved during publish", err)
		}
		return Outcome{}, errors.Wrap(errors.CodePersistence, "write version", err)
	}
	p.metrics.VersionStored()
	log.Printf("publish: game %s version %d stored, hash %s", payload.GameID, version.Version, hash[:12])
	return Outcome{VersionID: version.ID, Version: version.Version, Hash: hash}, nil
}

// diffMoments compares moments by ordinal across payload versions. A moment
// counts as changed when its span, type, or swing differs.
func diffMoments(prior *Payload, next Payload) MomentDiff {
	diff := MomentDiff{Added: []int{}, Removed: []int{}, Changed: []int{}}
	if prior == nil {
		for _, m := range next.Moments {
			diff.Added = append(diff.Added, m.Ordinal)
		}
		return diff
	}

	prevByOrdinal := map[int]moment.Moment{}
	for _, m := range prior.Moments {
		prevByOrdinal[m.Ordinal] = m
	}
	nextOrdinals := map[int]struct{}{}
	for _, m := range next.Moments {
		nextOrdinals[m.Ordinal] = struct{}{}
		prev, ok := prevByOrdinal[m.Ordinal]
		if !ok {
			diff.Added = append(diff.Added, m.Ordinal)
			continue
		}
		if prev.Type != m.Type || prev.StartIndex != m.StartIndex ||
			prev.EndIndex != m.EndIndex || prev.Swing != m.Swing {
			diff.Changed = append(diff.Changed, m.Ordinal)
		}
	}
	for _, m := range prior.Moments {
		if _, ok := nextOrdinals[m.Ordinal]; !ok {
			diff.Removed = append(diff.Removed, m.Ordinal)
		}
	}
	return diff
}

// BuildPayload assembles the artifact body from finalized pipeline outputs.
func BuildPayload(gameID, sport string, chapters []chapter.Chapter, moments []moment.Moment, blocks []block.Block, scores []drama.ChapterScore, issues []render.Issue) Payload {
	summary := Summary{
		DramaScores:  scores,
		RenderIssues: issues,
		Narrative:    []string{},
	}
	if scores == nil {
		summary.DramaScores = []drama.ChapterScore{}
	}
	if issues == nil {
		summary.RenderIssues = []render.Issue{}
	}
	if len(blocks) > 0 {
		summary.FinalScore = blocks[len(blocks)-1].ScoreAfter
	}
	for _, b := range blocks {
		if b.Narrative != nil {
			summary.Narrative = append(summary.Narrative, *b.Narrative)
		}
	}
	return Payload{
		GameID:   gameID,
		Sport:    sport,
		Timeline: Timeline{Chapters: chapters, Blocks: blocks},
		Moments:  moments,
		Summary:  summary,
	}
}
