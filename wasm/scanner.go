//go:build wasm

package main

import (
	"bytes"
	"log/slog"
	"sync"
	"syscall/js"

	"github.com/go-json-experiment/json"
	"github.com/praetorian-inc/scanrt/pkg/rule"
	"github.com/praetorian-inc/scanrt/pkg/scanner"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

var (
	scanners   = make(map[int]*scanner.Core)
	scannersMu sync.RWMutex
	nextID     int
)

func failure(msg string, err error) map[string]any {
	if err != nil {
		msg += ": " + err.Error()
	}
	return map[string]any{"error": msg}
}

// encode returns v as a JSON string for JS.
func encode(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return failure("failed to marshal results", err)
	}
	return string(b)
}

// loadPatterns accepts "builtin", a JSON pattern document or YAML.
func loadPatterns(src string) ([]*types.Pattern, error) {
	l := rule.NewLoader()
	trimmed := bytes.TrimSpace([]byte(src))
	switch {
	case string(trimmed) == "builtin":
		return l.LoadBuiltin()
	case bytes.HasPrefix(trimmed, []byte("{")):
		return l.ParseJSON(trimmed)
	default:
		return l.Parse(trimmed)
	}
}

// newScanner compiles patterns into a new scanner.
// JS: ScanrtNewScanner(patterns) -> {handle} or {error}
func newScanner(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return failure("patterns argument required", nil)
	}
	patterns, err := loadPatterns(args[0].String())
	if err != nil {
		return failure("failed to load patterns", err)
	}

	core, err := scanner.NewCore(patterns, slog.New(slog.DiscardHandler))
	if err != nil {
		return failure("failed to create scanner", err)
	}

	scannersMu.Lock()
	id := nextID
	nextID++
	scanners[id] = core
	scannersMu.Unlock()

	return map[string]any{"handle": id}
}

func lookup(args []js.Value, want int, usage string) (*scanner.Core, any) {
	if len(args) < want {
		return nil, failure(usage, nil)
	}
	scannersMu.RLock()
	core, ok := scanners[args[0].Int()]
	scannersMu.RUnlock()
	if !ok {
		return nil, failure("invalid scanner handle", nil)
	}
	return core, nil
}

// scanContent scans one string.
// JS: ScanrtScan(handle, content, source?, maxMatches?) -> JSON result or {error}
func scanContent(this js.Value, args []js.Value) any {
	core, fail := lookup(args, 2, "handle and content arguments required")
	if fail != nil {
		return fail
	}
	var source string
	if len(args) > 2 {
		source = args[2].String()
	}
	var limit int
	if len(args) > 3 {
		limit = args[3].Int()
	}

	res, err := core.Scan([]byte(args[1].String()), source, limit)
	if err != nil {
		return failure("scan failed", err)
	}
	return encode(res)
}

// scanBatch scans a JSON array of content items.
// JS: ScanrtScanBatch(handle, itemsJSON) -> JSON batch result or {error}
func scanBatch(this js.Value, args []js.Value) any {
	core, fail := lookup(args, 2, "handle and itemsJSON arguments required")
	if fail != nil {
		return fail
	}
	var items []scanner.ContentItem
	if err := json.Unmarshal([]byte(args[1].String()), &items); err != nil {
		return failure("failed to parse items JSON", err)
	}

	res, err := core.ScanBatch(items)
	if err != nil {
		return failure("batch scan failed", err)
	}
	return encode(res)
}

// openStream starts a stream on a scanner.
// JS: ScanrtOpenStream(handle, source?) -> {stream} or {error}
func openStream(this js.Value, args []js.Value) any {
	core, fail := lookup(args, 1, "handle argument required")
	if fail != nil {
		return fail
	}
	var source string
	if len(args) > 1 {
		source = args[1].String()
	}
	id, err := core.OpenStream(source)
	if err != nil {
		return failure("failed to open stream", err)
	}
	return map[string]any{"stream": id}
}

// writeStream feeds a chunk to a stream.
// JS: ScanrtWriteStream(handle, stream, chunk) -> JSON result or {error}
func writeStream(this js.Value, args []js.Value) any {
	core, fail := lookup(args, 3, "handle, stream and chunk arguments required")
	if fail != nil {
		return fail
	}
	res, err := core.WriteStream(args[1].String(), []byte(args[2].String()), 0)
	if err != nil {
		return failure("stream write failed", err)
	}
	return encode(res)
}

// closeStream ends a stream and reports its end-of-data matches.
// JS: ScanrtCloseStream(handle, stream) -> JSON result or {error}
func closeStream(this js.Value, args []js.Value) any {
	core, fail := lookup(args, 2, "handle and stream arguments required")
	if fail != nil {
		return fail
	}
	res, err := core.CloseStream(args[1].String())
	if err != nil {
		return failure("stream close failed", err)
	}
	return encode(res)
}

// closeScanner releases a scanner and its open streams.
// JS: ScanrtCloseScanner(handle)
func closeScanner(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return failure("handle argument required", nil)
	}
	handle := args[0].Int()

	scannersMu.Lock()
	core, ok := scanners[handle]
	delete(scanners, handle)
	scannersMu.Unlock()
	if !ok {
		return failure("invalid scanner handle", nil)
	}
	if err := core.Close(); err != nil {
		return failure("close failed", err)
	}
	return nil
}

// builtinPatterns lists the builtin patterns.
// JS: ScanrtBuiltinPatterns() -> JSON pattern array or {error}
func builtinPatterns(this js.Value, args []js.Value) any {
	patterns, err := rule.NewLoader().LoadBuiltin()
	if err != nil {
		return failure("failed to load builtin patterns", err)
	}
	return encode(patterns)
}
