package entities

import "time"

// Operation identifies the kind of enhancement applied to a transcription.
type Operation string

const (
	OperationCleanup       Operation = "CLEANUP"
	OperationSummary       Operation = "SUMMARY"
	OperationLectureNotes  Operation = "LECTURE_NOTES"
	OperationCustomPrompt  Operation = "CUSTOM_PROMPT"
	OperationTranslation   Operation = "TRANSLATION"
	OperationExamQuestions Operation = "EXAM_QUESTIONS"
)

// Valid reports whether the operation is one of the supported kinds.
func (o Operation) Valid() bool {
	switch o {
	case OperationCleanup, OperationSummary, OperationLectureNotes,
		OperationCustomPrompt, OperationTranslation, OperationExamQuestions:
		return true
	}
	return false
}

// Structured reports whether the operation produces itemized output that is
// recombined with part labels and key-concept merging rather than plain
// concatenation.
func (o Operation) Structured() bool {
	return o == OperationLectureNotes || o == OperationExamQuestions
}

// ErrorCode is the closed error taxonomy every provider adapter maps into.
// Nothing above the adapters branches on vendor-specific errors.
type ErrorCode string

const (
	ErrCodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodeAuthFailed       ErrorCode = "AUTH_FAILED"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeTokenOverflow    ErrorCode = "TOKEN_OVERFLOW"
	ErrCodeUpstreamTimeout  ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeEmptyResponse    ErrorCode = "EMPTY_RESPONSE"
	ErrCodeUnknown          ErrorCode = "UNKNOWN"
)

// Retryable reports whether an error of this code is transient and worth
// retrying with backoff.
func (c ErrorCode) Retryable() bool {
	return c == ErrCodeRateLimited || c == ErrCodeUpstreamTimeout
}

// EnhancementRequest carries everything needed to enhance one completed
// transcription. It is immutable once created; the provider and model travel
// with the request instead of living in any global state.
type EnhancementRequest struct {
	TranscriptionID    string    `json:"transcription_id"`
	UserID             string    `json:"user_id"`
	Operation          Operation `json:"operation"`
	Provider           string    `json:"provider"`
	ModelKey           string    `json:"model_key"`
	Language           string    `json:"language"`
	SourceText         string    `json:"source_text"`
	CustomPrompt       string    `json:"custom_prompt,omitempty"`
	DurationSeconds    float64   `json:"duration_seconds"`
	SpeakerRecognition bool      `json:"speaker_recognition"`
}

// EnhancementError is the user-visible failure attached to a result.
type EnhancementError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// EnhancementResult is produced exactly once per request. When Error is set,
// EnhancedText equals the source text: a failed enhancement is an explicit
// no-op, never a silent pass-through.
type EnhancementResult struct {
	EnhancedText    string            `json:"enhanced_text"`
	Summary         string            `json:"summary,omitempty"`
	KeyConcepts     []string          `json:"key_concepts,omitempty"`
	ChunksProcessed int               `json:"chunks_processed"`
	ProviderUsed    string            `json:"provider_used"`
	ModelUsed       string            `json:"model_used"`
	Error           *EnhancementError `json:"error,omitempty"`
}

// Failed reports whether the result carries an error.
func (r *EnhancementResult) Failed() bool {
	return r != nil && r.Error != nil
}

// Chunk is a bounded slice of source text processed independently to stay
// within a model's token budget. Chunks exist only for the lifetime of one
// orchestration run and are never persisted.
type Chunk struct {
	Index      int
	Total      int
	Text       string
	ByteOffset int
}

// Transcription is the slice of the transcription record this service reads
// and writes. The transcription engine itself is an external collaborator.
type Transcription struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Language           string    `json:"language"`
	SourceText         string    `json:"source_text"`
	DurationSeconds    float64   `json:"duration_seconds"`
	SpeakerRecognition bool      `json:"speaker_recognition"`
	EnhancedText       string    `json:"enhanced_text,omitempty"`
	EnhancementSummary string    `json:"enhancement_summary,omitempty"`
	Enhanced           bool      `json:"enhanced"`
	UpdatedAt          time.Time `json:"updated_at"`
}
