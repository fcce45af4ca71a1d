package workflow

import (
	"fmt"

	"github.com/erazemk/tracky/internal/model"
)

// Op is an operation a caller requests on an entity.
type Op string

// Operations.
const (
	OpCreate          Op = "create"
	OpGet             Op = "get"
	OpList            Op = "list"
	OpUpdate          Op = "update"
	OpDelete          Op = "delete"
	OpRequestEdit     Op = "request_edit"
	OpApproveEdit     Op = "approve_edit"
	OpApprove         Op = "approve"
	OpAppendLocation  Op = "append_location"
	OpLocationHistory Op = "location_history"
)

// grant lists the states a role may perform an op in. A nil states set means
// any state. denied is returned for the other states.
type grant struct {
	states map[model.ApprovalState]bool
	denied error
}

var (
	anyState = grant{}

	errNeedsEditGrant   = fmt.Errorf("%w: approved entities change through an approved edit request", model.ErrForbidden)
	errNotYetApproved   = fmt.Errorf("%w: edit requests apply to approved entities only", model.ErrForbidden)
	errNoEditRequest    = fmt.Errorf("%w: no edit request", model.ErrPreconditionFailed)
	errUnapprovedLocked = fmt.Errorf("%w: unapproved entities are written by a supervisor", model.ErrForbidden)
)

func states(s ...model.ApprovalState) map[model.ApprovalState]bool {
	m := make(map[model.ApprovalState]bool, len(s))
	for _, v := range s {
		m[v] = true
	}
	return m
}

// policy is the capability table. Roles absent from an op's row are
// forbidden from it outright.
var policy = map[Op]map[model.Role]grant{
	OpCreate: {
		model.RoleSupervisor: anyState,
	},
	OpGet: {
		model.RoleViewer:     anyState,
		model.RoleOperator:   anyState,
		model.RoleSupervisor: anyState,
	},
	OpList: {
		model.RoleViewer:     anyState,
		model.RoleOperator:   anyState,
		model.RoleSupervisor: anyState,
	},
	OpUpdate: {
		model.RoleOperator: {
			states: states(model.StateEditApproved),
			denied: errNeedsEditGrant,
		},
		model.RoleSupervisor: anyState,
	},
	OpDelete: {
		model.RoleSupervisor: anyState,
	},
	OpRequestEdit: {
		model.RoleOperator: {
			states: states(model.StateApproved, model.StateEditRequested, model.StateEditApproved),
			denied: errNotYetApproved,
		},
	},
	OpApproveEdit: {
		model.RoleSupervisor: {
			states: states(model.StateEditRequested),
			denied: errNoEditRequest,
		},
	},
	OpApprove: {
		model.RoleSupervisor: anyState,
	},
	OpAppendLocation: {
		model.RoleOperator:   anyState,
		model.RoleSupervisor: anyState,
	},
	OpLocationHistory: {
		model.RoleViewer:     anyState,
		model.RoleOperator:   anyState,
		model.RoleSupervisor: anyState,
	},
}

// Check returns nil if role may perform op on an entity in state, and the
// taxonomy error explaining the refusal otherwise.
func Check(role model.Role, state model.ApprovalState, op Op) error {
	row, ok := policy[op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", model.ErrInvalidArgument, op)
	}
	g, ok := row[role]
	if !ok {
		return fmt.Errorf("%w: role %q may not %s", model.ErrForbidden, role, op)
	}
	if g.states == nil || g.states[state] {
		return nil
	}
	if state == model.StateUnapproved && op == OpUpdate {
		return errUnapprovedLocked
	}
	return g.denied
}

// CanTransition reports whether role may perform op on an entity in state.
func CanTransition(role model.Role, state model.ApprovalState, op Op) bool {
	return Check(role, state, op) == nil
}

// Next returns the state an entity moves to after role successfully performs
// op on it in state.
func Next(state model.ApprovalState, role model.Role, op Op) model.ApprovalState {
	switch op {
	case OpCreate:
		return model.StateUnapproved
	case OpApprove:
		return model.StateApproved
	case OpRequestEdit:
		return model.StateEditRequested
	case OpApproveEdit:
		return model.StateEditApproved
	case OpUpdate:
		// Any write consumes a one-shot grant. A pending request survives a
		// supervisor write.
		if state == model.StateEditApproved {
			return model.StateApproved
		}
	}
	return state
}
