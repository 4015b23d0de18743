package chunking

import "strings"

const (
	defaultChunkSize = 900
	paragraphBreak   = "\n\n"
)

// Splitter packs whole paragraphs into chunks of at most ChunkSize runes.
// Paragraphs longer than ChunkSize are cut into overlapping rune windows.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(normalized, paragraphBreak)

	var out []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			out = append(out, chunk)
		}
		current.Reset()
		currentLen = 0
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pLen := len([]rune(p))
		if pLen > s.ChunkSize {
			flush()
			out = append(out, s.window(p)...)
			continue
		}
		sepLen := 0
		if currentLen > 0 {
			sepLen = len(paragraphBreak)
		}
		if currentLen+sepLen+pLen > s.ChunkSize {
			flush()
			sepLen = 0
		}
		if sepLen > 0 {
			current.WriteString(paragraphBreak)
		}
		current.WriteString(p)
		currentLen += sepLen + pLen
	}
	flush()
	return out
}

func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
