// Package planner computes guillotine cut plans. It is pure: no database, no
// side effects. Persisting a plan is the caller's job.
package planner

import (
	"fmt"
	"math"

	"github.com/agromallas/mallas-app/apperrors"
	"github.com/agromallas/mallas-app/models"
)

// Eps absorbs float noise when comparing dimensions and areas in meters.
const Eps = 1e-9

// Piece is one rectangle of a cut plan. Seq 1 is always the target; remnants
// follow in cut order.
type Piece struct {
	Seq    int              `json:"seq"`
	Role   models.PieceRole `json:"role"`
	Length float64          `json:"length"`
	Width  float64          `json:"width"`
}

// Area returns the piece area in square meters.
func (p Piece) Area() float64 {
	return p.Length * p.Width
}

// PlannedRemnant is a remnant piece plus the planner's keep/discard verdict.
// Discarded remnants are still part of the plan so the diagram and the job can
// trace every square meter of the panel.
type PlannedRemnant struct {
	Piece
	Discard bool `json:"discard"`
}

// Plan is the deterministic result of planning one cut: the target piece and
// up to two remnant strips. Target area plus all remnant areas always equals
// the original panel area.
type Plan struct {
	PanelLength float64          `json:"panel_length"`
	PanelWidth  float64          `json:"panel_width"`
	Rotated     bool             `json:"rotated"`
	Target      Piece            `json:"target"`
	Remnants    []PlannedRemnant `json:"remnants"`
}

// WasteArea is the total area of remnants below the discard threshold.
func (pl Plan) WasteArea() float64 {
	var waste float64
	for _, r := range pl.Remnants {
		if r.Discard {
			waste += r.Area()
		}
	}
	return waste
}

// UsableRemnants returns the remnants worth keeping, in cut order.
func (pl Plan) UsableRemnants() []PlannedRemnant {
	var out []PlannedRemnant
	for _, r := range pl.Remnants {
		if !r.Discard {
			out = append(out, r)
		}
	}
	return out
}

// Fits reports whether a request fits a panel directly or rotated. This is the
// single containment rule used both for planning and for remnant candidate
// search.
func Fits(panelLength, panelWidth, reqLength, reqWidth float64) bool {
	direct := panelLength >= reqLength-Eps && panelWidth >= reqWidth-Eps
	rotated := panelLength >= reqWidth-Eps && panelWidth >= reqLength-Eps
	return direct || rotated
}

// Compute plans a single rectangular cut on a panel using at most two straight
// guillotine cuts. The target is placed against the panel origin; the first
// cut runs parallel to the major axis and frees a full-length strip along the
// minor dimension, the second frees a side strip along the major dimension.
// That yields at most two rectangular remnants, always in that order.
//
// Remnants with area at or below discardThreshold are kept in the plan but
// flagged for discard. Identical inputs always produce the identical plan.
func Compute(panelLength, panelWidth, reqLength, reqWidth, discardThreshold float64) (Plan, error) {
	if reqLength <= 0 || reqWidth <= 0 {
		return Plan{}, fmt.Errorf("requested dimensions must be positive, got %.4f x %.4f", reqLength, reqWidth)
	}
	if panelLength <= 0 || panelWidth <= 0 {
		return Plan{}, apperrors.Wrap(apperrors.ErrInsufficientArea, "panel %.4f x %.4f is exhausted", panelLength, panelWidth)
	}

	direct := panelLength >= reqLength-Eps && panelWidth >= reqWidth-Eps
	rotatedFit := panelLength >= reqWidth-Eps && panelWidth >= reqLength-Eps
	if !direct && !rotatedFit {
		return Plan{}, apperrors.Wrap(apperrors.ErrInsufficientArea,
			"request %.4f x %.4f does not fit panel %.4f x %.4f", reqLength, reqWidth, panelLength, panelWidth)
	}

	// Deterministic orientation: direct wins whenever it fits.
	tLen, tWid := reqLength, reqWidth
	rotated := false
	if !direct {
		tLen, tWid = reqWidth, reqLength
		rotated = true
	}

	// Canonicalize onto major/minor axes so the cut order is stable regardless
	// of how the panel happens to be measured.
	major, minor := panelLength, panelWidth
	tMajor, tMinor := tLen, tWid
	if panelWidth > panelLength {
		major, minor = panelWidth, panelLength
		tMajor, tMinor = tWid, tLen
	}

	plan := Plan{
		PanelLength: panelLength,
		PanelWidth:  panelWidth,
		Rotated:     rotated,
		Target: Piece{
			Seq:    1,
			Role:   models.RoleTarget,
			Length: tMajor,
			Width:  tMinor,
		},
	}

	seq := 2

	// First cut: full-width strip along the minor dimension.
	if minor-tMinor > Eps {
		r := PlannedRemnant{Piece: Piece{
			Seq:    seq,
			Role:   models.RoleRemnant,
			Length: major,
			Width:  minor - tMinor,
		}}
		r.Discard = r.Area() <= discardThreshold+Eps
		plan.Remnants = append(plan.Remnants, r)
		seq++
	}

	// Second cut: side strip along the major dimension, minor-height of the target.
	if major-tMajor > Eps {
		r := PlannedRemnant{Piece: Piece{
			Seq:    seq,
			Role:   models.RoleRemnant,
			Length: major - tMajor,
			Width:  tMinor,
		}}
		r.Discard = r.Area() <= discardThreshold+Eps
		plan.Remnants = append(plan.Remnants, r)
	}

	return plan, nil
}

// Conserved verifies the plan decomposes the full panel: target area plus all
// remnant areas equals the original area within epsilon.
func (pl Plan) Conserved() bool {
	total := pl.Target.Area()
	for _, r := range pl.Remnants {
		total += r.Area()
	}
	return math.Abs(total-pl.PanelLength*pl.PanelWidth) < 1e-6
}
