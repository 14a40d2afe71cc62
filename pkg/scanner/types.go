package scanner

// ContentItem is one piece of content in a batch.
type ContentItem struct {
	Source   string            `json:"source"`  // caller-chosen label, e.g. "request:42:body"
	Content  string            `json:"content"` // text to scan
	Data     []byte            `json:"data,omitzero"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// bytes returns Data when set, otherwise Content.
func (i ContentItem) bytes() []byte {
	if i.Data != nil {
		return i.Data
	}
	return []byte(i.Content)
}

// Match is one match resolved to its pattern.
type Match struct {
	PatternID uint32 `json:"pattern_id"`
	Pattern   string `json:"pattern"`
	From      uint64 `json:"from"`
	To        uint64 `json:"to"`
	Snippet   string `json:"snippet,omitempty"`
}

// ScanResult holds the matches of one scan, stream write or stream close.
type ScanResult struct {
	Source  string  `json:"source"`
	Outcome string  `json:"outcome"`
	Matches []Match `json:"matches"`
}

// BatchScanResult holds the results of a batch.
type BatchScanResult struct {
	Results []ScanResult `json:"results"`
	Total   int          `json:"total"`
	Failed  int          `json:"failed"`
}

// StreamInfo describes an open stream.
type StreamInfo struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Offset uint64 `json:"offset"`
}
