package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/praetorian-inc/scanrt/pkg/store"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
)

var (
	storePath        string
	storeIncremental bool
)

// addStoreFlags registers --store, and --incremental for commands that know
// an input's ID before scanning it.
func addStoreFlags(cmd *cobra.Command, incremental bool) {
	cmd.Flags().StringVar(&storePath, "store", "", "Record the run in a SQLite file, postgres:// URL or :memory:")
	if incremental {
		cmd.Flags().BoolVar(&storeIncremental, "incremental", false, "Skip inputs a recorded run already scanned (requires --store)")
	}
}

// recorder writes one run to a store. A nil recorder records nothing.
type recorder struct {
	st  store.Store
	run *store.Run
}

func openRecorder(mode types.Mode, backendName string, patterns []*types.Pattern) (*recorder, error) {
	if storePath == "" {
		if storeIncremental {
			return nil, fmt.Errorf("--incremental requires --store")
		}
		return nil, nil
	}

	st, err := store.New(store.Config{Path: storePath})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	rec := &recorder{st: st, run: store.NewRun(mode, backendName)}
	if err := rec.begin(patterns); err != nil {
		st.Close()
		return nil, err
	}
	logger.Debug("recording run", "run", rec.run.ID, "store", storePath)
	return rec, nil
}

func (rc *recorder) begin(patterns []*types.Pattern) error {
	if err := rc.st.AddRun(rc.run); err != nil {
		return fmt.Errorf("storing run: %w", err)
	}
	for _, p := range patterns {
		if err := rc.st.AddPattern(store.NewPatternRecord(rc.run.ID, p)); err != nil {
			return fmt.Errorf("storing pattern %s: %w", p.Label(), err)
		}
	}
	return nil
}

// scanned reports whether --incremental should skip content with this ID.
func (rc *recorder) scanned(id types.InputID) (bool, error) {
	if rc == nil || !storeIncremental {
		return false, nil
	}
	ok, err := rc.st.InputScanned(id)
	if err != nil {
		return false, fmt.Errorf("checking input %s: %w", id.Hex(), err)
	}
	return ok, nil
}

// finish stores the results, or only the failure when scanErr is set, and
// closes the store.
func (rc *recorder) finish(r *results, scanErr error) error {
	if rc == nil {
		return nil
	}
	err := rc.store(r, scanErr)
	return errors.Join(err, rc.st.Close())
}

func (rc *recorder) store(r *results, scanErr error) error {
	outcome := r.outcome()
	if scanErr != nil {
		outcome = scanErr.Error()
	} else {
		for _, in := range r.sorted() {
			if err := rc.st.AddInput(&store.InputRecord{
				RunID: rc.run.ID, ID: in.ID, Name: in.Name, Size: in.Size,
			}); err != nil {
				return fmt.Errorf("storing input %s: %w", in.Name, err)
			}
			for i, ev := range in.Events {
				if err := rc.st.AddMatch(&store.Match{
					RunID:     rc.run.ID,
					Input:     in.Name,
					InputID:   in.ID,
					PatternID: ev.ID,
					From:      ev.From,
					To:        ev.To,
					Snippet:   in.Snippets[i],
				}); err != nil {
					return fmt.Errorf("storing match: %w", err)
				}
			}
		}
	}
	return rc.st.FinishRun(rc.run.ID, time.Now().UTC(), outcome)
}
