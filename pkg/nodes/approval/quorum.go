// Package approval computes the quorum of human-approval gates.
package approval

import (
	"slices"

	"github.com/dukex/flowstate/pkg/models"
)

// Tally counts the decisions recorded for one gate.
type Tally struct {
	Approved int
	Rejected int
	Pending  int
}

// Total is the number of eligible approvers.
func (t Tally) Total() int {
	return t.Approved + t.Rejected + t.Pending
}

// Count tallies a set of approval rows.
func Count(approvals []*models.NodeApproval) Tally {
	var tally Tally

	for _, approval := range approvals {
		switch approval.Status {
		case models.ApprovalStatusApproved:
			tally.Approved++
		case models.ApprovalStatusRejected:
			tally.Rejected++
		default:
			tally.Pending++
		}
	}

	return tally
}

// Outcome is the result of evaluating a gate's quorum.
type Outcome struct {
	Resolved bool
	Passed   bool
	Tally    Tally
}

// Evaluate applies the approval mode to the tally.
//
// Under all, a single rejection resolves the gate negatively; otherwise it
// resolves once nobody is pending and passes only when everyone approved.
// Under any, a single approval resolves the gate positively; otherwise it
// resolves negatively once everyone rejected.
func Evaluate(mode models.ApprovalMode, tally Tally) Outcome {
	outcome := Outcome{Tally: tally}

	if tally.Total() == 0 {
		return outcome
	}

	switch mode {
	case models.ApprovalModeAll:
		switch {
		case tally.Rejected > 0:
			outcome.Resolved = true
		case tally.Pending == 0:
			outcome.Resolved = true
			outcome.Passed = tally.Approved == tally.Total()
		}
	default:
		switch {
		case tally.Approved > 0:
			outcome.Resolved = true
			outcome.Passed = true
		case tally.Rejected == tally.Total():
			outcome.Resolved = true
		}
	}

	return outcome
}

// RequiredInputs is the inputsRequired value of a gate's node-state.
func RequiredInputs(mode models.ApprovalMode, approvers int) int {
	if mode == models.ApprovalModeAll && approvers > 0 {
		return approvers
	}

	return 1
}

// Approvers merges user ids from several sources, dropping duplicates and
// empty ids, in ascending order.
func Approvers(sources ...[]string) []string {
	merged := make([]string, 0)

	for _, ids := range sources {
		for _, id := range ids {
			if id != "" {
				merged = append(merged, id)
			}
		}
	}

	slices.Sort(merged)

	return slices.Compact(merged)
}
