// Package merge implements the merge state machine: computing a three-way
// merge between two commits, persisting whatever it can't auto-resolve as
// a MergeIndex, and finalising once every conflict carries a resolution.
//
// A repository is in exactly one of two states, CLEAN or RESOLVING, tracked
// entirely by which sentinel files exist in its private directory — there
// is no separate state byte to fall out of sync with reality. Entering
// RESOLVING writes all four sentinels; Abort removes them; Finalise writes
// the merge commit and then removes them. MERGE_HEAD is written last and
// removed first, and InProgress looks only at it, so an interrupted merge
// reads as RESOLVING exactly when MERGE_HEAD exists; other sentinels an
// interruption leaves behind are overwritten by the next merge.
package merge

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

const (
	mergeHeadFile  = "MERGE_HEAD"
	mergeIndexFile = "MERGE_INDEX"
	mergeMsgFile   = "MERGE_MSG"
	origHeadFile   = "ORIG_HEAD"
)

// State is a located, loaded in-progress merge. A CLEAN repository has no
// State; InProgress reports which case applies.
type State struct {
	privateDir string

	OursHead   hash.Hash // ORIG_HEAD: the branch tip before the merge started
	TheirsHead hash.Hash // MERGE_HEAD: the commit being merged in
	Message    string    // MERGE_MSG
	Index      *Index    // MERGE_INDEX, decoded
}

func sentinelPath(privateDir, name string) string {
	return filepath.Join(privateDir, name)
}

// InProgress reports whether privateDir holds a RESOLVING merge, based
// purely on sentinel presence: MERGE_HEAD is the authoritative marker,
// matching the "which sentinel files are present" recovery rule.
func InProgress(privateDir string) bool {
	_, err := os.Stat(sentinelPath(privateDir, mergeHeadFile))
	return err == nil
}

// Load reads a RESOLVING merge's state back from its sentinel files. It is
// an error to call this when InProgress is false.
func Load(privateDir string) (*State, error) {
	if !InProgress(privateDir) {
		return nil, kerr.New(kerr.InvalidOperation, "no merge in progress")
	}

	theirsRaw, err := os.ReadFile(sentinelPath(privateDir, mergeHeadFile))
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading %s", mergeHeadFile)
	}
	theirs, ok := hash.MaybeParse(strings.TrimSpace(string(theirsRaw)))
	if !ok {
		return nil, kerr.New(kerr.IntegrityError, "%s: corrupt commit hash", mergeHeadFile)
	}

	oursRaw, err := os.ReadFile(sentinelPath(privateDir, origHeadFile))
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading %s", origHeadFile)
	}
	ours, ok := hash.MaybeParse(strings.TrimSpace(string(oursRaw)))
	if !ok {
		return nil, kerr.New(kerr.IntegrityError, "%s: corrupt commit hash", origHeadFile)
	}

	msgRaw, err := os.ReadFile(sentinelPath(privateDir, mergeMsgFile))
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "reading %s", mergeMsgFile)
	}

	f, err := os.Open(sentinelPath(privateDir, mergeIndexFile))
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "opening %s", mergeIndexFile)
	}
	defer f.Close()
	idx, err := DecodeIndex(f)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "decoding %s", mergeIndexFile)
	}

	return &State{privateDir: privateDir, OursHead: ours, TheirsHead: theirs, Message: string(msgRaw), Index: idx}, nil
}

// begin writes the four RESOLVING sentinels, entering the RESOLVING state.
// Called only after the three-way merge has actually produced conflicts;
// a clean or fast-forward merge never calls this.
func begin(privateDir string, ours, theirs hash.Hash, message string, idx *Index) (*State, error) {
	if InProgress(privateDir) {
		return nil, kerr.MergeInProgress()
	}

	if err := os.WriteFile(sentinelPath(privateDir, origHeadFile), []byte(ours.String()+"\n"), 0o644); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "writing %s", origHeadFile)
	}
	if err := os.WriteFile(sentinelPath(privateDir, mergeMsgFile), []byte(message), 0o644); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "writing %s", mergeMsgFile)
	}
	if err := writeMergeIndex(privateDir, idx); err != nil {
		return nil, err
	}
	// MERGE_HEAD is written last: its presence is what InProgress checks,
	// so a crash partway through leaves InProgress reporting false and the
	// half-written ORIG_HEAD/MERGE_MSG/MERGE_INDEX are simply overwritten
	// or ignored by the next merge attempt.
	if err := os.WriteFile(sentinelPath(privateDir, mergeHeadFile), []byte(theirs.String()+"\n"), 0o644); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "writing %s", mergeHeadFile)
	}

	return &State{privateDir: privateDir, OursHead: ours, TheirsHead: theirs, Message: message, Index: idx}, nil
}

// Save re-persists the in-progress merge's index, used after every
// Resolve call so a crash between resolutions never loses one that
// already succeeded.
func (s *State) Save() error {
	return writeMergeIndex(s.privateDir, s.Index)
}

// Abort discards all merge sentinels, returning the repository to CLEAN
// without writing a commit.
func Abort(privateDir string) error {
	if !InProgress(privateDir) {
		return kerr.New(kerr.InvalidOperation, "no merge in progress to abort")
	}
	return removeSentinels(privateDir)
}

func removeSentinels(privateDir string) error {
	for _, name := range []string{mergeHeadFile, mergeIndexFile, mergeMsgFile, origHeadFile} {
		if err := os.Remove(sentinelPath(privateDir, name)); err != nil && !os.IsNotExist(err) {
			return kerr.Wrap(kerr.IntegrityError, err, "removing %s", name)
		}
	}
	return nil
}

func writeMergeIndex(privateDir string, idx *Index) error {
	f, err := os.Create(sentinelPath(privateDir, mergeIndexFile))
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "writing %s", mergeIndexFile)
	}
	defer f.Close()
	if err := EncodeIndex(f, idx); err != nil {
		return err
	}
	return nil
}
