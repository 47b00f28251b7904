package tenancy

import (
	"errors"

	"gorm.io/gorm"

	"github.com/VellumResearchLab/vellum/internal/users"
)

// ErrForbidden indicates the caller does not own the target resource and is
// not an admin. It is surfaced uniformly for ownership violations; resources
// outside a caller's read scope simply fall out of scoped queries.
var ErrForbidden = errors.New("tenancy: forbidden")

// Identity is the resolved caller attached to every authenticated request.
type Identity struct {
	UserID string
	Role   users.Role
}

// IsAdmin reports whether the identity carries the administrative role.
func (id Identity) IsAdmin() bool {
	return id.Role == users.RoleAdmin
}

// Scope narrows a query over an owned resource type to rows the identity may
// see. Admins see everything, including orphaned rows with no owner; other
// callers see only rows they own. The filter is applied here, in one place,
// rather than scattered across call sites or pushed into the store.
func Scope(db *gorm.DB, identity Identity) *gorm.DB {
	if identity.IsAdmin() {
		return db
	}
	return db.Where("owner_id = ?", identity.UserID)
}

// AuthorizeWrite checks a mutation against the resource's current owner. A
// nil owner marks an orphaned row from pre-tenancy data, writable only by
// admins until one adopts it.
func AuthorizeWrite(ownerID *string, identity Identity) error {
	if identity.IsAdmin() {
		return nil
	}
	if ownerID == nil || *ownerID != identity.UserID {
		return ErrForbidden
	}
	return nil
}

// OwnerFor returns the owner reference to stamp onto a newly created
// resource. The value always comes from the resolved identity; any
// client-supplied owner has been discarded long before this point.
func OwnerFor(identity Identity) *string {
	owner := identity.UserID
	return &owner
}
