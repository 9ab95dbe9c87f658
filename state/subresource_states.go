package state

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/resource"
)

type explicitState struct {
	subresource resource.Subresource
	state       resource.States
}

// SubresourceStates is the state of every subresource of one resource. A wildcard state
// covers every subresource that has no explicit entry of its own. Explicit entries are
// kept ordered by subresource index.
type SubresourceStates struct {
	wildcard    resource.States
	hasWildcard bool
	explicit    []explicitState
}

func (s *SubresourceStates) find(subresource resource.Subresource) (int, bool) {
	for index, entry := range s.explicit {
		if entry.subresource == subresource {
			return index, true
		}
		if entry.subresource > subresource {
			return index, false
		}
	}
	return len(s.explicit), false
}

// Get returns the state of subresource. Passing resource.AllSubresources returns the
// wildcard state.
func (s *SubresourceStates) Get(subresource resource.Subresource) (resource.States, bool) {
	if subresource != resource.AllSubresources {
		if index, ok := s.find(subresource); ok {
			return s.explicit[index].state, true
		}
	}

	return s.wildcard, s.hasWildcard
}

// Has reports whether subresource has a state, explicit or through the wildcard
func (s *SubresourceStates) Has(subresource resource.Subresource) bool {
	_, ok := s.Get(subresource)
	return ok
}

// HasExplicit reports whether subresource has an entry of its own
func (s *SubresourceStates) HasExplicit(subresource resource.Subresource) bool {
	_, ok := s.find(subresource)
	return ok
}

// Wildcard returns the state applied to subresources without an explicit entry
func (s *SubresourceStates) Wildcard() (resource.States, bool) {
	return s.wildcard, s.hasWildcard
}

// Uniform returns the state of the resource if every subresource is known to be in the
// same state through the wildcard alone
func (s *SubresourceStates) Uniform() (resource.States, bool) {
	if !s.hasWildcard || len(s.explicit) > 0 {
		return 0, false
	}
	return s.wildcard, true
}

// ExplicitCount returns the number of subresources with their own entry
func (s *SubresourceStates) ExplicitCount() int {
	return len(s.explicit)
}

// IsEmpty reports whether no state has been recorded at all
func (s *SubresourceStates) IsEmpty() bool {
	return !s.hasWildcard && len(s.explicit) == 0
}

// VisitExplicit calls visitor for each explicit entry in subresource order
func (s *SubresourceStates) VisitExplicit(visitor func(subresource resource.Subresource, state resource.States)) {
	for _, entry := range s.explicit {
		visitor(entry.subresource, entry.state)
	}
}

// Set records state for subresource. Setting resource.AllSubresources replaces every
// explicit entry with the new wildcard.
func (s *SubresourceStates) Set(subresource resource.Subresource, state resource.States) {
	if subresource == resource.AllSubresources {
		s.wildcard = state
		s.hasWildcard = true
		s.explicit = s.explicit[:0]
		return
	}

	index, ok := s.find(subresource)
	if ok {
		s.explicit[index].state = state
		return
	}

	s.explicit = append(s.explicit, explicitState{})
	copy(s.explicit[index+1:], s.explicit[index:])
	s.explicit[index] = explicitState{subresource: subresource, state: state}
}

// SetWildcard records the wildcard state without disturbing explicit entries, which keep
// precedence for their own subresources
func (s *SubresourceStates) SetWildcard(state resource.States) {
	s.wildcard = state
	s.hasWildcard = true
}

// Compact folds explicit entries back into the wildcard where possible. Entries equal to
// the wildcard are dropped, and a full set of identical entries becomes the wildcard.
func (s *SubresourceStates) Compact(subresourceCount int) {
	if len(s.explicit) == 0 {
		return
	}

	if s.hasWildcard {
		kept := s.explicit[:0]
		for _, entry := range s.explicit {
			if entry.state != s.wildcard {
				kept = append(kept, entry)
			}
		}
		s.explicit = kept
	}

	if len(s.explicit) != subresourceCount {
		return
	}

	state := s.explicit[0].state
	for _, entry := range s.explicit[1:] {
		if entry.state != state {
			return
		}
	}

	s.Set(resource.AllSubresources, state)
}

// Reset forgets every recorded state
func (s *SubresourceStates) Reset() {
	s.wildcard = 0
	s.hasWildcard = false
	s.explicit = s.explicit[:0]
}

func (s *SubresourceStates) mustGet(handle resource.Handle, subresource resource.Subresource) resource.States {
	state, ok := s.Get(subresource)
	if !ok {
		panic(errors.AssertionFailedf("subresource %s of %s has no recorded state", subresource, handle))
	}
	return state
}

func (s *SubresourceStates) writeJson(json jwriter.ObjectState) {
	if s.hasWildcard {
		json.Name("All").String(s.wildcard.String())
	}

	if len(s.explicit) == 0 {
		return
	}

	subresources := json.Name("Subresources").Object()
	for _, entry := range s.explicit {
		subresources.Name(entry.subresource.String()).String(entry.state.String())
	}
	subresources.End()
}
