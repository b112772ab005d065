package users

import (
	"sort"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/shared"
)

// Patch is a partial update of an account. Nil fields are left unchanged.
type Patch struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email  *string `json:"email" validate:"omitempty,email,max=254"`
	Role   *string `json:"role" validate:"omitempty,oneof=admin travailleur client"`
	Status *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Role == nil && p.Status == nil
}

// ChangesPrivileges reports whether the patch touches role or status.
func (p Patch) ChangesPrivileges() bool {
	return p.Role != nil || p.Status != nil
}

// Fields lists the changed field names in order.
func (p Patch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	sort.Strings(fields)
	return fields
}

// Apply returns p applied on top of current.
func (p Patch) Apply(current auth.Principal) auth.Principal {
	next := current
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Email != nil {
		next.Email = *p.Email
	}
	if p.Role != nil {
		next.Role = auth.Role(*p.Role)
	}
	if p.Status != nil {
		next.Status = auth.Status(*p.Status)
	}
	return next
}

// ListResult is a page of accounts.
type ListResult struct {
	Users      []auth.Principal  `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}
