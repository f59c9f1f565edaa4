package idpcore

import "context"

// AddGroup adds target to groupCode and grants the group's automatic roles.
// A group manager without the superuser authority must belong to the group.
func (e *Engine) AddGroup(ctx context.Context, target, groupCode string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.AddGroup(ctx, target, groupCode, toFlowAdmin(admin))
}

func (e *Engine) RemoveGroup(ctx context.Context, target, groupCode string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.RemoveGroup(ctx, target, groupCode, toFlowAdmin(admin))
}

// AssignableGroups returns every group for a superuser and the admin's own
// groups otherwise, sorted by name.
func (e *Engine) AssignableGroups(ctx context.Context, admin Principal) ([]Group, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	recs, err := e.flows.AssignableGroups(ctx, toFlowAdmin(admin))
	if err != nil {
		return nil, err
	}
	out := make([]Group, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromFlowGroup(r))
	}
	return out, nil
}
