// Package scenetree owns every structural mutation of a generation's scene
// sequence and its parallel video-state sequence. All inserts and deletes go
// through here so the two sequences are always spliced identically and the
// ordering contract (each root immediately followed by its contiguous block
// of angle-children) never breaks.
package scenetree

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/models"
)

// IndexOf returns the position of the scene with the given id, or -1.
func IndexOf(g *models.Generation, sceneID uuid.UUID) int {
	for i := range g.Scenes {
		if g.Scenes[i].ID == sceneID {
			return i
		}
	}
	return -1
}

// ParentIndex resolves a scene's parent reference to the parent's current
// position. Returns -1 for root scenes. Because parents are stable ids, the
// answer is always correct regardless of prior inserts or deletes.
func ParentIndex(g *models.Generation, i int) int {
	if g.Scenes[i].ParentID == nil {
		return -1
	}
	return IndexOf(g, *g.Scenes[i].ParentID)
}

// childBlockEnd returns the index one past the last angle-child of the root
// at rootIdx. Children are contiguous immediately after their root.
func childBlockEnd(g *models.Generation, rootIdx int) int {
	rootID := g.Scenes[rootIdx].ID
	end := rootIdx + 1
	for end < len(g.Scenes) && g.Scenes[end].ParentID != nil && *g.Scenes[end].ParentID == rootID {
		end++
	}
	return end
}

// ChildCount returns how many angle-children the scene at rootIdx currently has.
func ChildCount(g *models.Generation, rootIdx int) int {
	return childBlockEnd(g, rootIdx) - rootIdx - 1
}

// AppendRoots appends primary scenes to the end of the sequence, each paired
// with a fresh idle video state.
func AppendRoots(g *models.Generation, scenes []models.Scene) {
	for _, s := range scenes {
		s.ParentID = nil
		g.Scenes = append(g.Scenes, s)
		g.VideoStates = append(g.VideoStates, models.NewVideoState())
	}
}

// InsertAngleChildren splices the given scenes in, as angle-children of the
// root with rootID, immediately after the root and any of its pre-existing
// children. Each inserted scene gets a fresh idle video state at the same
// position. Returns the index the first child landed at.
//
// The root must exist and must itself be a root: the tree is two levels deep,
// angles of angles are not a thing.
func InsertAngleChildren(g *models.Generation, rootID uuid.UUID, children []models.Scene) (int, error) {
	rootIdx := IndexOf(g, rootID)
	if rootIdx < 0 {
		return 0, fmt.Errorf("root scene %s not found", rootID)
	}
	if !g.Scenes[rootIdx].IsRoot() {
		return 0, fmt.Errorf("scene %s is itself a camera angle, cannot derive angles from it", rootID)
	}

	at := childBlockEnd(g, rootIdx)

	for i := range children {
		pid := rootID
		children[i].ParentID = &pid
	}

	g.Scenes = append(g.Scenes[:at], append(append([]models.Scene{}, children...), g.Scenes[at:]...)...)

	states := make([]models.VideoState, len(children))
	for i := range states {
		states[i] = models.NewVideoState()
	}
	g.VideoStates = append(g.VideoStates[:at], append(states, g.VideoStates[at:]...)...)

	return at, nil
}

// Delete removes the scene with the given id and applies the cascade rules:
//
//   - deleting a root also removes its whole contiguous angle-child block;
//   - deleting the sole remaining angle-child of a root also removes the root.
//
// Scenes and video states are spliced in the same operation, so no reader can
// ever observe the two sequences at different lengths. Returns how many nodes
// were removed.
func Delete(g *models.Generation, sceneID uuid.UUID) (int, error) {
	idx := IndexOf(g, sceneID)
	if idx < 0 {
		return 0, fmt.Errorf("scene %s not found", sceneID)
	}

	start, end := idx, idx+1
	if g.Scenes[idx].IsRoot() {
		end = childBlockEnd(g, idx)
	} else if pIdx := ParentIndex(g, idx); pIdx >= 0 && ChildCount(g, pIdx) == 1 {
		// Sole remaining angle-child: the root goes too.
		start = pIdx
	}

	removed := end - start
	g.Scenes = append(g.Scenes[:start], g.Scenes[end:]...)
	g.VideoStates = append(g.VideoStates[:start], g.VideoStates[end:]...)

	return removed, nil
}

// ApplyEdit replaces a scene's image in place, keeping the prior image for a
// single level of undo, and clears any stale per-scene error.
func ApplyEdit(g *models.Generation, sceneID uuid.UUID, image []byte, mimeType string) error {
	idx := IndexOf(g, sceneID)
	if idx < 0 {
		return fmt.Errorf("scene %s not found", sceneID)
	}
	s := &g.Scenes[idx]
	s.PrevImage = s.Image
	s.PrevMimeType = s.MimeType
	s.Image = image
	s.MimeType = mimeType
	s.Error = nil
	return nil
}

// UndoEdit restores the image saved by the most recent ApplyEdit.
func UndoEdit(g *models.Generation, sceneID uuid.UUID) error {
	idx := IndexOf(g, sceneID)
	if idx < 0 {
		return fmt.Errorf("scene %s not found", sceneID)
	}
	s := &g.Scenes[idx]
	if s.PrevImage == nil {
		return fmt.Errorf("scene %s has no edit to undo", sceneID)
	}
	s.Image, s.PrevImage = s.PrevImage, nil
	s.MimeType, s.PrevMimeType = s.PrevMimeType, ""
	return nil
}

// Validate checks the structural invariants: aligned sequence lengths, every
// parent reference resolving to an existing root, children contiguous after
// their root, and depth ≤ 2.
func Validate(g *models.Generation) error {
	if len(g.Scenes) != len(g.VideoStates) {
		return fmt.Errorf("scene/video-state sequences diverged: %d scenes, %d states", len(g.Scenes), len(g.VideoStates))
	}
	for i := range g.Scenes {
		if g.Scenes[i].ParentID == nil {
			continue
		}
		pIdx := IndexOf(g, *g.Scenes[i].ParentID)
		if pIdx < 0 {
			return fmt.Errorf("scene %d references missing parent %s", i, *g.Scenes[i].ParentID)
		}
		if !g.Scenes[pIdx].IsRoot() {
			return fmt.Errorf("scene %d is an angle of an angle", i)
		}
		if i <= pIdx || childBlockEnd(g, pIdx) <= i {
			return fmt.Errorf("scene %d is not contiguous with its root at %d", i, pIdx)
		}
	}
	return nil
}
