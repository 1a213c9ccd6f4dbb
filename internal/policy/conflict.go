// Package policy decides final destination paths under a duplicate policy.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Malcolmdotpeewhy/folderflatten/pkg/types"
)

// Resolver resolves destination name collisions for one execution session.
// It tracks names claimed by earlier moves in the same run, so two source
// files sharing a name never race for the same destination even before the
// first one lands on disk.
type Resolver struct {
	destDir string
	policy  types.DuplicatePolicy
	claimed map[string]bool
}

func NewResolver(destDir string, policy types.DuplicatePolicy) *Resolver {
	return &Resolver{
		destDir: destDir,
		policy:  policy,
		claimed: make(map[string]bool),
	}
}

// Resolution is the decided fate of one incoming filename.
type Resolution struct {
	// Kind is the move kind to record if the relocation succeeds.
	Kind types.MoveKind
	// DestPath is the final destination path. Empty when Skip is set.
	DestPath string
	// Skip indicates the file must not be moved.
	Skip bool
	// Overwrite indicates the caller must delete the current occupant first.
	Overwrite bool
}

// Resolve decides the destination for filename. Non-skip resolutions claim
// the final name for the remainder of the run. Deterministic given the same
// destination contents and claim history.
func (r *Resolver) Resolve(filename string) Resolution {
	if !r.occupied(filename) {
		r.claimed[filename] = true
		return Resolution{Kind: types.MoveKindMoved, DestPath: filepath.Join(r.destDir, filename)}
	}

	switch r.policy {
	case types.PolicySkip:
		return Resolution{Skip: true}

	case types.PolicyOverwrite:
		r.claimed[filename] = true
		return Resolution{
			Kind:      types.MoveKindOverwritten,
			DestPath:  filepath.Join(r.destDir, filename),
			Overwrite: true,
		}

	case types.PolicyRename:
		unique := r.uniqueName(filename)
		r.claimed[unique] = true
		return Resolution{Kind: types.MoveKindRenamed, DestPath: filepath.Join(r.destDir, unique)}

	default:
		return Resolution{Skip: true}
	}
}

// Claim marks a name as taken without resolving it, e.g. when the engine
// creates the archive subfolder inside the destination.
func (r *Resolver) Claim(name string) {
	r.claimed[name] = true
}

func (r *Resolver) occupied(name string) bool {
	if r.claimed[name] {
		return true
	}
	_, err := os.Stat(filepath.Join(r.destDir, name))
	return err == nil
}

// uniqueName appends _1, _2, ... before the extension until an unoccupied
// name is found.
func (r *Resolver) uniqueName(filename string) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !r.occupied(candidate) {
			return candidate
		}
	}
}
