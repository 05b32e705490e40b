package model

// DefaultProfilePicture is stored for users who register without one.
const DefaultProfilePicture = "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcSrb5zM9IM0Calt0JRegObDpvq61W6wZ2BdGAQ1dF-i_g&s"

// Well-known role names seeded at start-up.
const (
    RoleSuperstar = "Superstar"
    RoleAdmin     = "Admin"
)

// User represents an account as persisted by any store backend.  IDs are
// opaque strings: a hex ObjectID for MongoDB, a decimal key for MySQL.
//
// Fields:
//  ID             – primary key identifier of the user.
//  Username       – unique login name.
//  Email          – unique email address.
//  PasswordHash   – bcrypt hashed password; never serialized to clients.
//  Pronouns       – optional free text.
//  ProfilePicture – URL of the avatar.
//  RoleID         – reference into the roles collection/table.
type User struct {
    ID             string `json:"_id"`
    Username       string `json:"username"`
    Email          string `json:"email"`
    PasswordHash   string `json:"-"`
    Pronouns       string `json:"pronouns,omitempty"`
    ProfilePicture string `json:"profilePicture"`
    RoleID         string `json:"role"`
}

// UserPatch lists the mutable fields of a user.  Nil pointers are left
// untouched by UpdateUserByID.
type UserPatch struct {
    Username       *string
    Email          *string
    PasswordHash   *string
    Pronouns       *string
    ProfilePicture *string
    RoleID         *string
}

// PublicUser is the response shape for user data: the role is populated with
// its name and the password hash is absent.
type PublicUser struct {
    ID             string `json:"_id"`
    Username       string `json:"username"`
    Email          string `json:"email"`
    Pronouns       string `json:"pronouns,omitempty"`
    ProfilePicture string `json:"profilePicture"`
    Role           string `json:"role"`
}

// Public builds the response shape of u given its resolved role name.
func (u User) Public(roleName string) PublicUser {
    return PublicUser{
        ID:             u.ID,
        Username:       u.Username,
        Email:          u.Email,
        Pronouns:       u.Pronouns,
        ProfilePicture: u.ProfilePicture,
        Role:           roleName,
    }
}

// Role maps an ID to a unique role name.  Roles are reference data and are
// never changed by the API.
type Role struct {
    ID          string
    Name        string
    Description string
}

// DefaultRoles are ensured to exist by every store backend at start-up.
var DefaultRoles = []Role{
    {Name: RoleSuperstar, Description: "Regular user of the site."},
    {Name: RoleAdmin, Description: "Full access and permissions to the site."},
}
