// Package errors provides structured error handling for the narrative
// pipeline.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeEventSequenceEmpty  Code = "EVENT_SEQUENCE_EMPTY"
	CodeEventIndexGap       Code = "EVENT_INDEX_GAP"
	CodeEventIndexDuplicate Code = "EVENT_INDEX_DUPLICATE"
	CodeEventOrderRegressed Code = "EVENT_ORDER_REGRESSED"
	CodeEventScoreNegative  Code = "EVENT_SCORE_NEGATIVE"
	CodeEventClockMalformed Code = "EVENT_CLOCK_MALFORMED"
	CodeGameIDEmpty         Code = "GAME_ID_EMPTY"
	CodeSportUnknown        Code = "SPORT_UNKNOWN"

	// Validation errors
	CodePartitionGap         Code = "PARTITION_GAP"
	CodePartitionOverlap     Code = "PARTITION_OVERLAP"
	CodeChapterNotContiguous Code = "CHAPTER_NOT_CONTIGUOUS"
	CodeMomentBudgetExceeded Code = "MOMENT_BUDGET_EXCEEDED"
	CodeBlockCountOutOfRange Code = "BLOCK_COUNT_OUT_OF_RANGE"
	CodeBlockOrderRegressed  Code = "BLOCK_ORDER_REGRESSED"
	CodeNarratedSetInvalid   Code = "NARRATED_SET_INVALID"
	CodeStoryStateDiverged   Code = "STORY_STATE_DIVERGED"

	// Render errors
	CodeRenderTransient Code = "RENDER_TRANSIENT"
	CodeRenderEmpty     Code = "RENDER_EMPTY"

	// Pipeline errors
	CodeRunInFlight  Code = "RUN_IN_FLIGHT"
	CodeRunNotFound  Code = "RUN_NOT_FOUND"
	CodeRunTerminal  Code = "RUN_TERMINAL"
	CodeStageTimeout Code = "STAGE_TIMEOUT"
	CodeRunCanceled  Code = "RUN_CANCELED"
	CodeStageUnknown Code = "STAGE_UNKNOWN"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"
	CodePersistence     Code = "PERSISTENCE"
)

// HTTPStatus maps an error code to the HTTP status the control surface
// returns for it.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeEventSequenceEmpty, CodeEventIndexGap, CodeEventIndexDuplicate,
		CodeEventOrderRegressed, CodeEventScoreNegative, CodeEventClockMalformed,
		CodeGameIDEmpty, CodeSportUnknown:
		return http.StatusBadRequest
	case CodeNotFound, CodeRunNotFound:
		return http.StatusNotFound
	case CodeRunInFlight, CodeRunTerminal, CodeVersionConflict:
		return http.StatusConflict
	case CodeStageTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
