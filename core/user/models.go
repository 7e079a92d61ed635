package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gopiashokan/Educational-Management-System/core"
)

// Roles.
//
// Evaluator roles are scoped to a concept: "evaluator:<concept>" marks a
// subject assistant, "evaluator:lead:<concept>" a lead evaluator. Both carry
// the same evaluation capability (see EvaluatorRole); lead additionally
// outranks assistants for the same concept.
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"

	// Evaluators
	RoleEvaluatorPrefix     = "evaluator:"
	RoleEvaluatorLeadPrefix = "evaluator:lead:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Students & evaluators: 10 - 1
		RoleEvaluatorLeadPrefix: 5,
		RoleEvaluatorPrefix:     3,
		RoleStudent:             1,
	}
)

func RolePriority(role string) int {
	if p, ok := rolePriorities[role]; ok {
		return p
	}
	// evaluator roles carry a concept suffix
	if strings.HasPrefix(role, RoleEvaluatorLeadPrefix) {
		return rolePriorities[RoleEvaluatorLeadPrefix]
	}
	if strings.HasPrefix(role, RoleEvaluatorPrefix) {
		return rolePriorities[RoleEvaluatorPrefix]
	}
	return 0
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// IsValidRole reports whether role is one of the known fixed roles or a
// well-formed concept-scoped evaluator role.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAdminPrincipal, RoleTeacher, RoleStudent:
		return true
	}
	if strings.HasPrefix(role, RoleEvaluatorLeadPrefix) {
		return len(role) > len(RoleEvaluatorLeadPrefix)
	}
	if strings.HasPrefix(role, RoleEvaluatorPrefix) {
		return len(role) > len(RoleEvaluatorPrefix)
	}
	return false
}

// EvaluatorRole is the evaluation capability carried by a concept-scoped
// role. Callers consume it the same way whether the holder is a lead or an
// assistant evaluator.
type EvaluatorRole struct {
	Concept string
	Lead    bool
}

// ParseEvaluatorRole extracts the evaluation capability from a role string.
// The lead prefix is checked first so a bare "evaluator:lead:" cannot be read
// as an assistant role with concept "lead:".
func ParseEvaluatorRole(role string) (EvaluatorRole, bool) {
	if strings.HasPrefix(role, RoleEvaluatorLeadPrefix) {
		c := strings.TrimPrefix(role, RoleEvaluatorLeadPrefix)
		if c == "" {
			return EvaluatorRole{}, false
		}
		return EvaluatorRole{Concept: c, Lead: true}, true
	}
	if c := strings.TrimPrefix(role, RoleEvaluatorPrefix); c != role && c != "" {
		return EvaluatorRole{Concept: c}, true
	}
	return EvaluatorRole{}, false
}

// EvaluatorRoleFor builds the role string granting evaluation rights on concept.
func EvaluatorRoleFor(concept string, lead bool) string {
	if lead {
		return RoleEvaluatorLeadPrefix + concept
	}
	return RoleEvaluatorPrefix + concept
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     *bool     `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) { u.IsActive = &active }

func (u *User) Active() bool { return u.IsActive != nil && *u.IsActive }

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsTeacher() bool { return u.RoleStartsWith(RoleTeacher) }
func (u *User) IsStudent() bool { return u.RoleStartsWith(RoleStudent) }

func (u *User) IsEvaluator() bool { return len(u.EvaluatorRoles()) > 0 }

// EvaluatorRoles returns every evaluation capability granted to the user.
func (u *User) EvaluatorRoles() []EvaluatorRole {
	var evals []EvaluatorRole
	for _, role := range u.Roles {
		if er, ok := ParseEvaluatorRole(role); ok {
			evals = append(evals, er)
		}
	}
	return evals
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

// GetFilter selects a single user; fields are tried in order.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
