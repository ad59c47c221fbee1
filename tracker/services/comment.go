package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/tracker/workflow"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type commentInfo struct {
	Id     uuid.UUID   `json:"id"`
	Author accountInfo `json:"author"`
	Phase  int         `json:"phase"`
	Text   string      `json:"text"`
	Sent   time.Time   `json:"sent"`
}

func convertComment(comment schema.Comment) commentInfo {
	return commentInfo{
		Id:     comment.Id,
		Author: convertAccount(comment.Author, comment.AuthorId),
		Phase:  comment.Phase,
		Text:   comment.Text,
		Sent:   comment.Sent,
	}
}

func (s *ThesisService) ListComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	thesis, err := loadThesis(s.db, thesisId)
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := workflow.CanViewComments(&thesis, actor); err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	var comments []schema.Comment
	result := s.db.Preload("Author").Where("thesis_id = ?", thesis.Id).Order("sent DESC").Find(&comments)
	if result.Error != nil {
		slog.Error("sql error listing comments", "thesis_id", thesis.Id, "error", result.Error)
		utils.WriteError(w, fmt.Sprintf("error listing comments: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	res := make([]commentInfo, 0, len(comments))
	for _, c := range comments {
		res = append(res, convertComment(c))
	}

	utils.WriteJsonResponse(w, res)
}

type addCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *ThesisService) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params addCommentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var comment schema.Comment
	err = s.db.Transaction(func(txn *gorm.DB) error {
		thesis, err := loadThesis(txn, thesisId)
		if err != nil {
			return err
		}

		if err := workflow.CanViewComments(&thesis, actor); err != nil {
			return ruleError(err)
		}

		comment = schema.Comment{
			Id:       uuid.New(),
			ThesisId: thesis.Id,
			AuthorId: actor.Id,
			Phase:    thesis.Phase,
			Text:     params.Text,
			Sent:     s.now().UTC(),
		}

		result := txn.Omit("Thesis", "Author").Create(&comment)
		if result.Error != nil {
			slog.Error("sql error creating comment", "thesis_id", thesis.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error adding comment: %v", err), GetResponseCode(err))
		return
	}

	comment.Author = &actor
	utils.WriteCreated(w, commentLocation(comment.ThesisId, comment.Id), convertComment(comment))
}

func (s *ThesisService) DeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	commentId, err := utils.URLParamUUID(r, "comment_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		comment, err := schema.GetComment(thesisId, commentId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCommentNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if comment.AuthorId != actor.Id {
			return ruleError(workflow.ErrCommentNotOwned)
		}

		result := txn.Delete(&comment)
		if result.Error != nil {
			slog.Error("sql error deleting comment", "comment_id", comment.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error deleting comment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteNoContent(w)
}
