package services

import (
	"fmt"
	"strings"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

const keyConceptsInstruction = "Finish with a section titled \"Key Concepts:\" listing the most important terms, one per line, each prefixed with \"- \"."

var systemPrompts = map[entities.Operation]string{
	entities.OperationCleanup: "You are an expert transcription editor. Fix punctuation, casing, " +
		"filler words and obvious speech-to-text mistakes in the transcript. Preserve the speaker's " +
		"meaning, tone and every factual statement. Return only the cleaned transcript.",
	entities.OperationSummary: "You are an expert at summarizing spoken content. Write a concise, " +
		"faithful summary of the transcript covering every major point. Return only the summary.",
	entities.OperationLectureNotes: "You are an expert note-taker. Turn the lecture transcript into " +
		"well-organized study notes with headings and bullet points. " + keyConceptsInstruction,
	entities.OperationCustomPrompt: "You are a helpful assistant working on a transcript. Follow the " +
		"user's instructions exactly and return only the requested output.",
	entities.OperationTranslation: "You are a professional translator. Translate the transcript " +
		"faithfully, keeping names, numbers and formatting intact. Return only the translation.",
	entities.OperationExamQuestions: "You are an expert educator. Write exam questions with answers " +
		"that test understanding of the transcript's content. " + keyConceptsInstruction,
}

// SystemPromptFor returns the instruction prompt for an operation.
func SystemPromptFor(op entities.Operation) string {
	if prompt, ok := systemPrompts[op]; ok {
		return prompt
	}
	return systemPrompts[entities.OperationCleanup]
}

// BuildUserPrompt assembles the user-role prompt for one chunk. The chunk
// label tells the model its slice's position so multi-part outputs stay
// coherent; enrichment is extra context supplied only for the first chunk.
func BuildUserPrompt(req *entities.EnhancementRequest, chunk entities.Chunk, enrichment string) string {
	var sb strings.Builder

	if req.Operation == entities.OperationCustomPrompt && req.CustomPrompt != "" {
		sb.WriteString("Instructions: ")
		sb.WriteString(req.CustomPrompt)
		sb.WriteString("\n\n")
	}
	if req.Operation == entities.OperationTranslation && req.CustomPrompt != "" {
		sb.WriteString("Target language: ")
		sb.WriteString(req.CustomPrompt)
		sb.WriteString("\n\n")
	}

	if enrichment != "" && chunk.Index == 0 {
		sb.WriteString("Additional context:\n")
		sb.WriteString(enrichment)
		sb.WriteString("\n\n")
	}

	if chunk.Total > 1 {
		fmt.Fprintf(&sb, "This is part %d of %d of a longer transcript. Process this part on its own; do not refer to missing parts.\n\n", chunk.Index+1, chunk.Total)
	}

	sb.WriteString("Transcript:\n")
	sb.WriteString(chunk.Text)
	return sb.String()
}

// PromptOverheadTokens estimates the token cost of everything around the
// source text so the budget planner can account for it.
func PromptOverheadTokens(estimator *TokenEstimator, req *entities.EnhancementRequest) int {
	overhead := estimator.Estimate(SystemPromptFor(req.Operation), "en")
	if req.CustomPrompt != "" {
		overhead += estimator.Estimate(req.CustomPrompt, req.Language)
	}
	// chunk labeling and section framing
	return overhead + 64
}
