package services

import "context"

// AccessStore answers the ownership and assignment questions behind every
// project-scoped operation.
type AccessStore interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	IsAssigned(ctx context.Context, projectID, raterID string) (bool, error)
}

// checkRead allows the owning requester and any assigned rater.
func checkRead(ctx context.Context, store AccessStore, who Principal, p *Project) error {
	switch who.Role {
	case RoleRequester:
		if p.OwnerID == who.UserID {
			return nil
		}
	case RoleRater:
		ok, err := store.IsAssigned(ctx, p.ID, who.UserID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return NewForbiddenError("access denied to project " + p.ID)
}

// checkOwner allows only the requester who owns the project.
func checkOwner(who Principal, p *Project) error {
	if who.Role != RoleRequester {
		return NewForbiddenError("requester role required")
	}
	if p.OwnerID != who.UserID {
		return NewForbiddenError("access denied to project " + p.ID)
	}
	return nil
}

func loadProject(ctx context.Context, store AccessStore, id string) (*Project, error) {
	p, err := store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NewNotFoundError("project not found: " + id)
	}
	return p, nil
}

func projectForRead(ctx context.Context, store AccessStore, who Principal, id string) (*Project, error) {
	p, err := loadProject(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if err := checkRead(ctx, store, who, p); err != nil {
		return nil, err
	}
	return p, nil
}

func projectForWrite(ctx context.Context, store AccessStore, who Principal, id string) (*Project, error) {
	p, err := loadProject(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(who, p); err != nil {
		return nil, err
	}
	return p, nil
}
