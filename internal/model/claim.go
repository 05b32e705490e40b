package model

// IdentityClaim is the identity embedded, encrypted, in an access token.  The
// role is always carried as its ID; names are resolved through the role store
// when needed.  PasswordHash lets the server detect tokens issued before a
// password change.
type IdentityClaim struct {
    UserID       string `json:"_id"`
    Username     string `json:"username"`
    Email        string `json:"email"`
    PasswordHash string `json:"password"`
    RoleID       string `json:"role"`
}

// ClaimFor builds the claim for a stored user.
func ClaimFor(u User) IdentityClaim {
    return IdentityClaim{
        UserID:       u.ID,
        Username:     u.Username,
        Email:        u.Email,
        PasswordHash: u.PasswordHash,
        RoleID:       u.RoleID,
    }
}
