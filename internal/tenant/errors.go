package tenant

import (
	"fmt"

	"vcsync.org/internal/apperr"
)

var (
	ErrOrganizationNotFound = fmt.Errorf("%w: organization not found", apperr.ErrNotFound)
	ErrAccountNotFound      = fmt.Errorf("%w: account not found", apperr.ErrNotFound)
	ErrMembershipNotFound   = fmt.Errorf("%w: membership not found", apperr.ErrNotFound)

	ErrOrganizationExists = fmt.Errorf("%w: organization name already exists", apperr.ErrConflict)
	ErrUsernameTaken      = fmt.Errorf("%w: username already exists", apperr.ErrConflict)
	ErrMembershipExists   = fmt.Errorf("%w: account is already a member of this organization", apperr.ErrConflict)

	ErrNotMember             = fmt.Errorf("%w: account is not a member of this organization", apperr.ErrForbidden)
	ErrInsufficientRole      = fmt.Errorf("%w: insufficient role for this organization", apperr.ErrForbidden)
	ErrNotAdmin              = fmt.Errorf("%w: account does not administer any organization", apperr.ErrForbidden)
	ErrAmbiguousOrganization = fmt.Errorf("%w: account administers multiple organizations; specify one", apperr.ErrForbidden)
	ErrSelfRemoval           = fmt.Errorf("%w: members cannot remove themselves", apperr.ErrForbidden)
)
