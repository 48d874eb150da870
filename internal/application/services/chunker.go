package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
)

// Chunker splits oversized source text at sentence boundaries and recombines
// the per-chunk enhancement outputs. Splitting cuts the original string by
// byte offset, so concatenating the chunk texts in order reproduces the
// source exactly, whitespace included.
type Chunker struct{}

// NewChunker creates a chunker.
func NewChunker() *Chunker {
	return &Chunker{}
}

// Split breaks text into chunks of at most maxChars characters, never
// cutting inside a sentence. A single sentence longer than maxChars becomes
// its own oversized chunk rather than being split mid-sentence.
func (c *Chunker) Split(text string, maxChars int) []entities.Chunk {
	if text == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []entities.Chunk{{Index: 0, Total: 1, Text: text}}
	}

	var chunks []entities.Chunk
	var buf strings.Builder
	bufChars := 0
	offset := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, entities.Chunk{
			Index:      len(chunks),
			Text:       buf.String(),
			ByteOffset: offset,
		})
		offset += buf.Len()
		buf.Reset()
		bufChars = 0
	}

	for _, sentence := range splitSentences(text) {
		chars := utf8.RuneCountInString(sentence)
		if bufChars > 0 && bufChars+chars > maxChars {
			flush()
		}
		buf.WriteString(sentence)
		bufChars += chars
	}
	flush()

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// splitSentences cuts text into sentence pieces whose concatenation equals
// the input. Each piece carries its terminator and any trailing whitespace.
func splitSentences(text string) []string {
	var pieces []string
	start := 0
	i := 0

	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isSentenceTerminator(r) {
			continue
		}

		// consume runs of terminators and closing quotes ("...?!", '."')
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isSentenceTerminator(r) && r != '"' && r != '\'' && r != ')' && r != '»' {
				break
			}
			i += size
		}

		// trailing whitespace belongs to this sentence so round-trips stay exact
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}

		pieces = append(pieces, text[start:i])
		start = i
	}

	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return pieces
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？', '\n':
		return true
	}
	return false
}

// Recombine merges per-chunk outputs into one result. Free-text operations
// concatenate with a paragraph break. Structured operations label each part
// and merge the itemized key-concept lists, de-duplicated case-insensitively.
func (c *Chunker) Recombine(op entities.Operation, parts []string) (string, []string) {
	if len(parts) == 0 {
		return "", nil
	}

	if !op.Structured() {
		return strings.Join(parts, "\n\n"), nil
	}

	bodies := make([]string, 0, len(parts))
	var concepts []string
	seen := make(map[string]struct{})

	for i, part := range parts {
		body, items := extractKeyConcepts(part)
		if len(parts) > 1 {
			body = fmt.Sprintf("## Part %d of %d\n\n%s", i+1, len(parts), body)
		}
		bodies = append(bodies, body)

		for _, item := range items {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			concepts = append(concepts, strings.TrimSpace(item))
		}
	}

	text := strings.Join(bodies, "\n\n")
	if len(concepts) > 0 {
		var sb strings.Builder
		sb.WriteString(text)
		sb.WriteString("\n\n## Key Concepts\n")
		for _, concept := range concepts {
			sb.WriteString("- ")
			sb.WriteString(concept)
			sb.WriteString("\n")
		}
		text = strings.TrimRight(sb.String(), "\n")
	}
	return text, concepts
}

// extractKeyConcepts strips a trailing "Key Concepts" section from one part
// and returns its items. Parts without such a section pass through intact.
func extractKeyConcepts(part string) (string, []string) {
	lines := strings.Split(part, "\n")
	headerIdx := -1

	for i := len(lines) - 1; i >= 0; i-- {
		header := strings.ToLower(strings.TrimSpace(strings.TrimLeft(lines[i], "#* ")))
		header = strings.TrimSuffix(header, ":")
		if header == "key concepts" {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return strings.TrimSpace(part), nil
	}

	var items []string
	for _, line := range lines[headerIdx+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "*") && !strings.HasPrefix(trimmed, "•") {
			// not an itemized line; section ended
			break
		}
		item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*• "))
		if item != "" {
			items = append(items, item)
		}
	}

	body := strings.TrimSpace(strings.Join(lines[:headerIdx], "\n"))
	return body, items
}
