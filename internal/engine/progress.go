package engine

import "github.com/Malcolmdotpeewhy/folderflatten/pkg/types"

// ProgressCallback receives updates after every processed entry. It is the
// sole observability channel into a running session; front ends must not
// peek at engine state directly.
type ProgressCallback func(update ProgressUpdate)

type ProgressUpdate struct {
	Type    string            `json:"type"`
	Phase   types.RunPhase    `json:"phase,omitempty"`
	Message string            `json:"message,omitempty"`
	Current int               `json:"current,omitempty"`
	Total   int               `json:"total,omitempty"`
	Path    string            `json:"path,omitempty"`
	Dest    string            `json:"dest,omitempty"`
	Kind    types.MoveKind    `json:"kind,omitempty"`
	Stats   *types.RunStats   `json:"stats,omitempty"`
	Scan    *types.ScanResult `json:"scan,omitempty"`
	Error   string            `json:"error,omitempty"`
}
