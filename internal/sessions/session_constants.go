package sessions

// Note the dashboard may depend on these values, changing them logs every user out
const (
	SessionCookieName = "_rentals_session"
	SessionCtxKey     = "rentals_session"
)
