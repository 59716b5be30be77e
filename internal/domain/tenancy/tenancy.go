// Package tenancy manages agencies, their sub-accounts, team members and
// invitations.
package tenancy

import "errors"

var (
	// ErrQuotaExceeded is returned when the agency's plan allows no more sub-accounts.
	ErrQuotaExceeded = errors.New("sub-account quota exceeded")
	// ErrDuplicate is returned when a pending invitation already exists for the email.
	ErrDuplicate = errors.New("invitation already pending")
	// ErrAlreadyMember is returned when inviting an email that already has an account.
	ErrAlreadyMember = errors.New("user already exists")
	// ErrOwnerProtected is returned when removing the owner or leaving the agency without one.
	ErrOwnerProtected = errors.New("agency owner cannot be removed or demoted")
	// ErrNotPending is returned when revoking an invitation that is no longer pending.
	ErrNotPending = errors.New("invitation is not pending")
)

const (
	entityAgency     = "agency"
	entitySubAccount = "subaccount"
	entityUser       = "user"
	entityInvitation = "invitation"
)
