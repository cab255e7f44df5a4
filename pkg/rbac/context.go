package rbac

import "context"

// Actor is the permission-relevant view of the authenticated caller.
// The authentication middleware attaches it after resolving live
// membership state; route middleware reads it for per-route checks.
type Actor struct {
	UserID       string
	RoleName     string
	IsSuperAdmin bool
	Permissions  PermissionSet
}

// Evaluator returns an evaluator configured for this actor. The
// reserved admin role is mapped to the override flag here, at the one
// place actor state becomes evaluator input; the role's table rows
// grant nothing and the registry keeps it immutable.
func (a Actor) Evaluator() Evaluator {
	return Evaluator{IsSuperAdmin: a.IsSuperAdmin || a.RoleName == AdminRoleName}
}

// Can reports whether the actor may perform (module, action)
func (a Actor) Can(p Permission) bool {
	return a.Evaluator().HasPermission(a.Permissions, p)
}

type actorContextKey struct{}

// WithActor attaches the actor to the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the actor set by the auth middleware
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
