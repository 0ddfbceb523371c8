package models

// Role names recognised by the platform.
const (
	RoleCustomer = "CUSTOMER"
	RoleProvider = "PROVIDER"
	RoleDelivery = "DELIVERY"
	RoleAdmin    = "ADMIN"
)

// Roles lists every recognised role.
var Roles = []string{RoleCustomer, RoleProvider, RoleDelivery, RoleAdmin}

// IsKnownRole reports whether role is one of Roles.
func IsKnownRole(role string) bool {
	for _, known := range Roles {
		if known == role {
			return true
		}
	}
	return false
}

// User is the slice of the platform account this service needs: who a
// notification may be addressed to.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Role     string `gorm:"type:varchar(32);not null;default:'CUSTOMER'" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}
