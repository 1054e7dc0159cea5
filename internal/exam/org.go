package exam

import (
	"net/mail"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type Institute struct {
	Meta         `bson:",inline"`
	Name         string `json:"name" bson:"name"`
	Code         string `json:"code" bson:"code"`
	Address      string `json:"address" bson:"address"`
	ContactEmail string `json:"contactEmail" bson:"contactEmail"`
	ContactPhone string `json:"contactPhone" bson:"contactPhone"`
}

func (i Institute) Validate() error {
	var c apperr.Collector
	c.Require("name", i.Name)
	c.Require("code", i.Code)
	return c.Err()
}

func (i Institute) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("code", strings.ToUpper(i.Code))}
}

type Batch struct {
	Meta      `bson:",inline"`
	Name      string     `json:"name" bson:"name"`
	Code      string     `json:"code" bson:"code"`
	StartDate *time.Time `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty" bson:"endDate,omitempty"`
}

func (b Batch) Validate() error {
	var c apperr.Collector
	c.Require("name", b.Name)
	c.Require("code", b.Code)
	if b.StartDate != nil && b.EndDate != nil && b.EndDate.Before(*b.StartDate) {
		c.Add("endDate", "must not be before startDate")
	}
	return c.Err()
}

func (b Batch) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("code", b.InstituteID, strings.ToUpper(b.Code))}
}

type Group struct {
	Meta       `bson:",inline"`
	BatchID    string   `json:"batchId" bson:"batchId"`
	Name       string   `json:"name" bson:"name"`
	StudentIDs []string `json:"studentIds" bson:"studentIds"`
}

func (g Group) Validate() error {
	var c apperr.Collector
	c.Require("batchId", g.BatchID)
	c.Require("name", g.Name)
	return c.Err()
}

func (g Group) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("name", g.BatchID, strings.ToLower(g.Name))}
}

// User never stores a password. Password is accepted on input and moved into
// the credentials collection as a bcrypt hash.
type User struct {
	Meta     `bson:",inline"`
	Name     string    `json:"name" bson:"name"`
	Email    string    `json:"email" bson:"email"`
	Phone    string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Role     rbac.Role `json:"role" bson:"role"`
	BatchIDs []string  `json:"batchIds" bson:"batchIds"`
	Password string    `json:"password,omitempty" bson:"-"`
}

func (u *User) ApplyDefaults() {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

func (u User) Validate() error {
	var c apperr.Collector
	c.Require("name", u.Name)
	c.Require("email", u.Email)
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			c.Add("email", "is not a valid address")
		}
	}
	if !u.Role.Valid() {
		c.Add("role", "is not a known role")
	}
	if u.Role != rbac.RoleSuperAdmin && u.InstituteID == "" {
		c.Add("instituteId", "is required")
	}
	return c.Err()
}

func (u User) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("email", strings.ToLower(u.Email))}
}

func (u User) Principal() rbac.Principal {
	return rbac.Principal{UserID: u.ID, Role: u.Role, InstituteID: u.InstituteID}
}

// Credential is keyed by user id.
type Credential struct {
	UserID       string    `json:"id" bson:"_id"`
	PasswordHash string    `json:"passwordHash" bson:"passwordHash"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}
