package main

import (
	"context"
	"fmt"
	"io"

	"github.com/praetorian-inc/scanrt/pkg/enum"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
)

// snippetWindow is how much recent stream data is kept for snippets.
// Matches starting further back are reported without one.
const snippetWindow = 64 << 10

var streamChunkSize int

var streamCmd = &cobra.Command{
	Use:   "stream <target>...",
	Short: "Scan inputs in streaming mode",
	Long: `Compile the selected patterns into a streaming database and feed every
input of the target through a stream in fixed-size chunks, so inputs of any
size are scanned in bounded memory. Matches may span chunk boundaries.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStream,
}

func init() {
	addPatternFlags(streamCmd)
	addTargetFlags(streamCmd)
	addOutputFlags(streamCmd)
	addStoreFlags(streamCmd, false)
	streamCmd.Flags().IntVar(&streamChunkSize, "chunk-size", scan.DefaultBufferSize, "Bytes fed to the stream per call")
	streamCmd.Flags().IntVar(&scanWorkers, "workers", 1, "Inputs streamed concurrently")
	streamCmd.Flags().IntVar(&scanMaxMatches, "max-matches", 0, "Stop streaming an input after this many matches (0 = no limit)")
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	patterns, err := loadPatterns()
	if err != nil {
		return err
	}
	opts, err := scanOptions(scan.WithBufferSize(streamChunkSize))
	if err != nil {
		return err
	}
	db, err := scan.NewStreamingDatabase(patterns, opts...)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}
	defer db.Close()

	pool, err := scan.NewScratchPool(db)
	if err != nil {
		return fmt.Errorf("allocating scratch: %w", err)
	}
	defer pool.Close()

	enumerator, err := createEnumerator(ctx, args)
	if err != nil {
		return fmt.Errorf("creating enumerator: %w", err)
	}

	rec, err := openRecorder(types.ModeStreaming, db.Backend(), patterns)
	if err != nil {
		return err
	}

	res := newResults(types.ModeStreaming, db.Backend(), patterns)
	scanErr := scanInputs(ctx, enumerator, scanWorkers, func(ctx context.Context, seq int, in enum.Input) error {
		return streamInput(ctx, db, pool, res, seq, in)
	})
	if err := rec.finish(res, scanErr); err != nil {
		logger.Error("failed to record run", "error", err)
	}
	if scanErr != nil {
		return scanErr
	}
	return writeResults(cmd, res)
}

func streamInput(ctx context.Context, db *scan.StreamingDatabase, pool *scan.ScratchPool, res *results, seq int, in enum.Input) error {
	rc, err := in.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening %s: %w", in.Name, err)
	}
	defer rc.Close()

	// The ID needs the length up front, so inputs of unknown size get none.
	var digest *types.InputDigest
	var r io.Reader = rc
	if in.Size >= 0 {
		digest = types.NewInputDigest(in.Size)
		r = io.TeeReader(rc, digest)
	}
	t := newTail(r, snippetWindow)

	sc, err := pool.Get()
	if err != nil {
		return err
	}
	defer pool.Put(sc)

	var events []types.MatchEvent
	var snippets [][]byte
	collect := limitMatches(&events, scanMaxMatches)
	h := func(id uint32, from, to uint64, flags uint32) scan.Matching {
		m := collect(id, from, to, flags)
		snippets = append(snippets, t.snippet(from, to))
		return m
	}

	out, err := db.ScanReader(ctx, t, sc, h)
	if err != nil {
		return fmt.Errorf("streaming %s: %w", in.Name, err)
	}

	size := t.total()
	var id types.InputID
	if digest != nil {
		// Finish the digest of a terminated stream.
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("reading %s: %w", in.Name, err)
		}
		size += uint64(n)
		id = digest.Sum()
	}

	logger.Debug("streamed input", "input", in.Name, "bytes", size, "matches", len(events), "outcome", out)
	res.add(&inputResult{
		Seq:      seq,
		Name:     in.Name,
		ID:       id,
		Size:     int64(size),
		Outcome:  out,
		Events:   events,
		Snippets: snippets,
	})
	return nil
}

// tail is a reader that remembers the last n bytes read through it.
type tail struct {
	r   io.Reader
	n   int
	buf []byte
	off uint64 // stream offset of buf[0]
}

func newTail(r io.Reader, n int) *tail {
	return &tail{r: r, n: n, buf: make([]byte, 0, n)}
}

func (t *tail) Read(p []byte) (int, error) {
	k, err := t.r.Read(p)
	if k > 0 {
		chunk := p[:k]
		if len(chunk) > t.n {
			t.off += uint64(len(t.buf) + len(chunk) - t.n)
			t.buf = append(t.buf[:0], chunk[len(chunk)-t.n:]...)
			return k, err
		}
		if over := len(t.buf) + len(chunk) - t.n; over > 0 {
			copy(t.buf, t.buf[over:])
			t.buf = t.buf[:len(t.buf)-over]
			t.off += uint64(over)
		}
		t.buf = append(t.buf, chunk...)
	}
	return k, err
}

func (t *tail) total() uint64 {
	return t.off + uint64(len(t.buf))
}

// snippet returns up to snippetBytes of [from, to) when it is still
// remembered.
func (t *tail) snippet(from, to uint64) []byte {
	if snippetBytes <= 0 || from < t.off || to > t.total() || from > to {
		return nil
	}
	to = min(to, from+uint64(snippetBytes))
	return append([]byte(nil), t.buf[from-t.off:to-t.off]...)
}
