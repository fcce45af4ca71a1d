package workflow

import (
	"errors"
	"testing"

	"github.com/erazemk/tracky/internal/model"
)

func TestCheck(t *testing.T) {
	const (
		viewer     = model.RoleViewer
		operator   = model.RoleOperator
		supervisor = model.RoleSupervisor
	)
	tests := []struct {
		role  model.Role
		state model.ApprovalState
		op    Op
		want  error
	}{
		{viewer, model.StateApproved, OpGet, nil},
		{viewer, model.StateApproved, OpLocationHistory, nil},
		{viewer, model.StateApproved, OpUpdate, model.ErrForbidden},
		{viewer, model.StateApproved, OpRequestEdit, model.ErrForbidden},
		{viewer, "", OpAppendLocation, model.ErrForbidden},
		{operator, "", OpCreate, model.ErrForbidden},
		{supervisor, "", OpCreate, nil},

		{operator, model.StateUnapproved, OpUpdate, model.ErrForbidden},
		{operator, model.StateApproved, OpUpdate, model.ErrForbidden},
		{operator, model.StateEditRequested, OpUpdate, model.ErrForbidden},
		{operator, model.StateEditApproved, OpUpdate, nil},
		{supervisor, model.StateUnapproved, OpUpdate, nil},
		{supervisor, model.StateApproved, OpUpdate, nil},

		{operator, model.StateUnapproved, OpRequestEdit, model.ErrForbidden},
		{operator, model.StateApproved, OpRequestEdit, nil},
		{operator, model.StateEditRequested, OpRequestEdit, nil},
		{operator, model.StateEditApproved, OpRequestEdit, nil},
		{supervisor, model.StateApproved, OpRequestEdit, model.ErrForbidden},

		{supervisor, model.StateApproved, OpApproveEdit, model.ErrPreconditionFailed},
		{supervisor, model.StateEditRequested, OpApproveEdit, nil},
		{operator, model.StateEditRequested, OpApproveEdit, model.ErrForbidden},

		{supervisor, model.StateUnapproved, OpApprove, nil},
		{operator, model.StateUnapproved, OpApprove, model.ErrForbidden},
		{operator, model.StateApproved, OpDelete, model.ErrForbidden},
		{supervisor, model.StateEditRequested, OpDelete, nil},
		{operator, "", OpAppendLocation, nil},

		{supervisor, model.StateApproved, Op("rename"), model.ErrInvalidArgument},
		{model.Role("guest"), model.StateApproved, OpGet, model.ErrForbidden},
	}

	for _, tt := range tests {
		err := Check(tt.role, tt.state, tt.op)
		if tt.want == nil {
			if err != nil {
				t.Errorf("Check(%s, %s, %s): expected nil, got %v", tt.role, tt.state, tt.op, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("Check(%s, %s, %s): expected %v, got %v", tt.role, tt.state, tt.op, tt.want, err)
		}
		if CanTransition(tt.role, tt.state, tt.op) {
			t.Errorf("CanTransition(%s, %s, %s): expected false", tt.role, tt.state, tt.op)
		}
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		state model.ApprovalState
		role  model.Role
		op    Op
		want  model.ApprovalState
	}{
		{"", model.RoleSupervisor, OpCreate, model.StateUnapproved},
		{model.StateUnapproved, model.RoleSupervisor, OpApprove, model.StateApproved},
		{model.StateApproved, model.RoleOperator, OpRequestEdit, model.StateEditRequested},
		{model.StateEditRequested, model.RoleSupervisor, OpApproveEdit, model.StateEditApproved},
		{model.StateEditApproved, model.RoleOperator, OpUpdate, model.StateApproved},
		{model.StateEditApproved, model.RoleSupervisor, OpUpdate, model.StateApproved},
		{model.StateEditRequested, model.RoleSupervisor, OpUpdate, model.StateEditRequested},
		{model.StateUnapproved, model.RoleSupervisor, OpUpdate, model.StateUnapproved},
		{model.StateApproved, model.RoleSupervisor, OpAppendLocation, model.StateApproved},
	}

	for _, tt := range tests {
		if got := Next(tt.state, tt.role, tt.op); got != tt.want {
			t.Errorf("Next(%s, %s, %s): expected %s, got %s", tt.state, tt.role, tt.op, tt.want, got)
		}
	}
}
