package domain

// User is an account as seen by the rest of the server. Guests have no row in
// the users table; their identity lives entirely in the token.
type User struct {
	Id           string
	Username     string
	PasswordHash string
	IsGuest      bool
	TotalPoints  int
	TotalWins    int
	Games        []string
}

// Identity is what a verified token carries.
type Identity struct {
	Id      string
	Name    string
	IsGuest bool
}
