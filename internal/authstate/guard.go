package authstate

import "github.com/accountkit/account-backend/internal/roles"

// Decision is the route guard's verdict for a render/request.
type Decision int

const (
	// DecisionLoading: the first session check has not settled yet.
	DecisionLoading Decision = iota
	DecisionUnauthenticated
	DecisionUnauthorized
	DecisionAuthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionUnauthorized:
		return "unauthorized"
	case DecisionAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Decide is the pure route-guard function. Precedence: loading beats
// everything, then authentication, then authorization. Role checks are exact
// set membership against the caller-supplied required set; callers build
// required sets from the roles hierarchy table (roles.AllowedFor), never by
// rank comparison.
func Decide(state State, requiredRoles []roles.Role) Decision {
	if !state.IsInitialized || state.IsLoading {
		return DecisionLoading
	}
	if state.User == nil {
		return DecisionUnauthenticated
	}
	if len(requiredRoles) > 0 && !roles.Contains(requiredRoles, state.User.Role) {
		return DecisionUnauthorized
	}
	return DecisionAuthorized
}
