package shared

import "context"

// Actor carries the pre-authorised identity the session layer resolved for a
// request. The commerce core trusts these values; it never re-authenticates.
type Actor struct {
	BusinessID int64
	StoreID    int64
	UserID     int64
	Role       string
}

type actorContextKey struct{}

// ContextWithActor stores the acting identity in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting identity from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
