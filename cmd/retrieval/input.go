package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

const maxBatchLine = 16 << 20

// readBatches decodes one domain.IngestBatch per non-empty line.
func readBatches(r io.Reader) ([]domain.IngestBatch, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxBatchLine)

	var batches []domain.IngestBatch
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var batch domain.IngestBatch
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("line %d: decode batch: %w", line, err)
		}
		if len(batch.Chunks) == 0 {
			return nil, fmt.Errorf("line %d: batch has no chunks", line)
		}
		batches = append(batches, batch)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batches: %w", err)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("batch file contains no batches")
	}
	return batches, nil
}

type documentFlags struct {
	DocID      string
	Title      string
	SourceType string
	SourceURL  string
	Category   string
	Priority   int
}

func documentAttributes(path string, flags documentFlags, now time.Time) (domain.RawMetadata, domain.IngestionAttributes) {
	filename := filepath.Base(path)
	docID := strings.TrimSpace(flags.DocID)
	if docID == "" {
		docID = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	title := strings.TrimSpace(flags.Title)
	if title == "" {
		title = filename
	}

	raw := domain.RawMetadata{
		DocID:     docID,
		Filename:  filename,
		Title:     title,
		Published: now,
	}
	attrs := domain.IngestionAttributes{
		SourceType: domain.SourceType(flags.SourceType),
		SourceURL:  flags.SourceURL,
		DocID:      docID,
		Filename:   filename,
		Title:      title,
		Category:   flags.Category,
		Priority:   flags.Priority,
		CreatedAt:  now,
	}
	return raw, attrs
}
