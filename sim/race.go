package sim

import (
	"github.com/sirupsen/logrus"
)

// Race suspends a process on several branches at once, typically
// "Acquire OR Timeout". The branch whose event fires first under the clock's
// (time, seq) order wins; later branches are swallowed.
//
// Losing branches are not cancelled: a losing Acquire may still be pending, or
// granted with its delivery discarded. Use Simulator.Discard, or cancel and
// release through the handles in Outcome.Branches.
type Race struct {
	Branches []Suspension
}

func (p *Process) race(r Race) {
	if len(r.Branches) == 0 {
		p.sim.fail(&InvalidStateError{Op: p.name, Reason: "race needs at least one branch"})
		return
	}
	resolved := false
	branches := make([]Branch, len(r.Branches))
	for i, b := range r.Branches {
		br, err := p.arm(b, func(out Outcome) {
			if resolved {
				logrus.Tracef("[tick %07d] process %d: race branch %d fired after resolution, discarded",
					out.Time, p.id, i)
				return
			}
			resolved = true
			out.Winner = i
			out.Branches = branches
			p.resume(out)
		})
		if err != nil {
			p.sim.fail(err)
			return
		}
		branches[i] = br
	}
}
