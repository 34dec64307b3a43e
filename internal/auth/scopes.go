package auth

// Known OAuth scopes used by the playtime service.
const (
	ScopePlaytimeRead  = "playtime:read"
	ScopePlaytimeAdmin = "playtime:admin"
)
