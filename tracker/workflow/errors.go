package workflow

import "fmt"

type Kind int

const (
	BadRequest Kind = iota
	Forbidden
	NotFound
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad request"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not found"
	default:
		return "invalid kind"
	}
}

// RuleError is returned when a request breaks a workflow rule. The kind tells
// the caller which class of failure it is, independent of the transport.
type RuleError struct {
	Kind Kind
	Msg  string
}

func (e *RuleError) Error() string {
	return e.Msg
}

func ruleErr(kind Kind, format string, args ...interface{}) *RuleError {
	return &RuleError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrStudentForbidden  = ruleErr(Forbidden, "students are not allowed to perform this action")
	ErrAdminOnly         = ruleErr(Forbidden, "only administrators are allowed to perform this action")
	ErrThesisLocked      = ruleErr(Forbidden, "thesis is locked")
	ErrThesisNotFound    = ruleErr(NotFound, "thesis not found")
	ErrNotAnAuthor       = ruleErr(Forbidden, "only authors of the thesis may submit")
	ErrNotAStudent       = ruleErr(Forbidden, "only students may submit")
	ErrNoDeadline        = ruleErr(Forbidden, "no submission deadline has been set for the current phase")
	ErrDeadlinePassed    = ruleErr(Forbidden, "submission deadline has passed")
	ErrEmptyStatus       = ruleErr(BadRequest, "status must not be empty")
	ErrNotGroupMember    = ruleErr(Forbidden, "you must be a member of the thesis group")
	ErrDuplicateMember   = ruleErr(BadRequest, "the same account may only appear once in a thesis group")
	ErrMissingTitle      = ruleErr(BadRequest, "title is required")
	ErrCommentNotOwned   = ruleErr(Forbidden, "comments may only be deleted by their author")
	ErrCommentNotVisible = ruleErr(Forbidden, "students may only view comments on their own thesis")
)
