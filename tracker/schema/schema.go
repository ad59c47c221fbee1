package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	Student       = "student"
	Faculty       = "faculty"
	Administrator = "administrator"
)

type Account struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email     string `gorm:"unique;size:254;not null"`
	FirstName string `gorm:"size:100;not null"`
	LastName  string `gorm:"size:100;not null"`
	Kind      string `gorm:"size:20;not null;index"`
	Password  []byte

	// Student-only grade, written by the grade action of the status endpoint.
	Grade   *float64
	Remarks string
}

func (a *Account) IsStudent() bool {
	return a.Kind == Student
}

func (a *Account) IsAdmin() bool {
	return a.Kind == Administrator
}

func (a *Account) DisplayName() string {
	return a.LastName + ", " + a.FirstName
}

func ValidKind(kind string) bool {
	return kind == Student || kind == Faculty || kind == Administrator
}

type Thesis struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:500;not null;index"`
	Description string

	Phase  int    `gorm:"not null;default:1"`
	Status string `gorm:"size:20;not null;default:'new'"`

	// nil is treated as approved when filtering lists.
	Approved *bool
	Locked   bool `gorm:"not null;default:false"`
	Inactive bool `gorm:"not null;default:false"`

	CreatedAt time.Time

	Members []ThesisMember `gorm:"constraint:OnDelete:CASCADE"`
	Grades  []ThesisGrade  `gorm:"constraint:OnDelete:CASCADE"`
}

func (t *Thesis) IsApproved() bool {
	return t.Approved == nil || *t.Approved
}

func (t *Thesis) membersWithRole(role string) []ThesisMember {
	members := make([]ThesisMember, 0)
	for _, m := range t.Members {
		if m.Role == role {
			members = append(members, m)
		}
	}
	return members
}

// Authors, Advisers and Panelists return members ordered by position as long
// as Members was preloaded with GetThesis.
func (t *Thesis) Authors() []ThesisMember {
	return t.membersWithRole(AuthorRole)
}

func (t *Thesis) Advisers() []ThesisMember {
	return t.membersWithRole(AdviserRole)
}

func (t *Thesis) Panelists() []ThesisMember {
	return t.membersWithRole(PanelistRole)
}

func (t *Thesis) HasMember(accountId uuid.UUID, roles ...string) bool {
	for _, m := range t.Members {
		if m.AccountId != accountId {
			continue
		}
		if len(roles) == 0 {
			return true
		}
		for _, role := range roles {
			if m.Role == role {
				return true
			}
		}
	}
	return false
}

// LatestGrade is the most recent entry of the thesis grade history, which is
// separate from the per-account grade kept on each student.
func (t *Thesis) LatestGrade() *ThesisGrade {
	var latest *ThesisGrade
	for i := range t.Grades {
		if latest == nil || t.Grades[i].Date.After(latest.Date) {
			latest = &t.Grades[i]
		}
	}
	return latest
}

const (
	AuthorRole   = "author"
	AdviserRole  = "adviser"
	PanelistRole = "panelist"
)

type ThesisMember struct {
	ThesisId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountId uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Role      string    `gorm:"size:20;primaryKey"`
	Position  int       `gorm:"not null"`

	Thesis  *Thesis  `gorm:"constraint:OnDelete:CASCADE"`
	Account *Account `gorm:"constraint:OnDelete:CASCADE"`
}

type ThesisGrade struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ThesisId uuid.UUID `gorm:"type:uuid;not null;index"`

	Date    time.Time `gorm:"not null"`
	Value   float64
	Remarks string
}

type Submission struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ThesisId    uuid.UUID `gorm:"type:uuid;not null;index"`
	SubmitterId uuid.UUID `gorm:"type:uuid;not null"`

	Phase     int       `gorm:"not null"`
	Submitted time.Time `gorm:"not null;index"`

	Attachments []Attachment `gorm:"constraint:OnDelete:CASCADE"`

	Thesis    *Thesis  `gorm:"constraint:OnDelete:CASCADE"`
	Submitter *Account `gorm:"foreignKey:SubmitterId"`
}

type Attachment struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubmissionId uuid.UUID `gorm:"type:uuid;not null;index"`

	OriginalName string `gorm:"size:500;not null"`
	MimeType     string `gorm:"size:200"`
	Size         int64
	Position     int

	// Key of the payload in the attachment storage backend.
	StorageKey string `gorm:"size:1000;not null"`
}

type SubmissionDate struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Phase    int       `gorm:"not null;uniqueIndex:idx_phase_subphase"`
	Subphase int       `gorm:"not null;default:0;uniqueIndex:idx_phase_subphase"`
	Date     time.Time `gorm:"not null"`
}

type Comment struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ThesisId uuid.UUID `gorm:"type:uuid;not null;index"`
	AuthorId uuid.UUID `gorm:"type:uuid;not null"`

	Phase int       `gorm:"not null"`
	Text  string    `gorm:"not null"`
	Sent  time.Time `gorm:"not null"`

	Thesis *Thesis  `gorm:"constraint:OnDelete:CASCADE"`
	Author *Account `gorm:"foreignKey:AuthorId"`
}

// AllModels lists every table, in dependency order, for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Account{}, &Thesis{}, &ThesisMember{}, &ThesisGrade{},
		&Submission{}, &Attachment{}, &SubmissionDate{}, &Comment{},
	}
}
