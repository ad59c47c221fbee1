package services

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/tracker/workflow"
	"thesis_tracker/utils/logging"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ThesisService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider

	quota *submissionQuota
	now   func() time.Time
}

func (s *ThesisService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Post("/", s.Create)

	r.With(auth.AdminOnly()).Get("/export", s.Export)

	r.Get("/deadline", s.GetDeadlines)
	r.With(auth.AdminOnly()).Post("/deadline", s.SetDeadlines)

	r.Route("/{thesis_id}", func(r chi.Router) {
		r.Get("/", s.Get)
		r.Put("/", s.Update)
		r.Delete("/", s.Delete)

		r.Get("/comment", s.ListComments)
		r.Post("/comment", s.AddComment)
		r.Delete("/comment/{comment_id}", s.DeleteComment)

		r.With(auth.RequirePassword(s.userAuth)).Post("/status", s.UpdateStatus)

		r.Post("/submission", s.Submit)
		r.Get("/submission/latest", s.LatestSubmission)
		r.Get("/submission/{submission_id}", s.GetSubmission)
		r.Get("/submission/{submission_id}/attachment/{attachment_id}", s.GetAttachment)
	})

	return r
}

func requestAccount(w http.ResponseWriter, r *http.Request) (schema.Account, bool) {
	account, err := auth.AccountFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return account, false
	}
	return account, true
}

// wantsSubmissions reports whether ?getSubmissions asks for every submission
// in the response.
func wantsSubmissions(r *http.Request) bool {
	params := r.URL.Query()
	return params.Has("getSubmissions") && workflow.Truthy(params.Get("getSubmissions"))
}

func groupSubmissions(submissions []schema.Submission) map[uuid.UUID][]schema.Submission {
	grouped := make(map[uuid.UUID][]schema.Submission)
	for _, s := range submissions {
		grouped[s.ThesisId] = append(grouped[s.ThesisId], s)
	}
	return grouped
}

func (s *ThesisService) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()

	scope, err := workflow.Scope(actor, params.Get("all"), params.Has("all"), params.Get("showPending"))
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	query := s.db.Model(&schema.Thesis{}).Where("inactive = ?", false)

	if text := params.Get("q"); text != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(text)+"%")
	}

	if status := params.Get("status"); status != "" {
		if !workflow.ValidStatus(status) {
			utils.WriteError(w, fmt.Sprintf("invalid status '%v'", status), http.StatusBadRequest)
			return
		}
		query = query.Where("status = ?", status)
	}

	if phaseParam := params.Get("phase"); phaseParam != "" {
		phase, err := strconv.Atoi(phaseParam)
		if err != nil || !workflow.ValidPhase(phase) {
			utils.WriteError(w, fmt.Sprintf("invalid phase '%v'", phaseParam), http.StatusBadRequest)
			return
		}
		query = query.Where("phase = ?", phase)
	}

	if scope.MemberId != nil {
		memberOf := s.db.Model(&schema.ThesisMember{}).Select("thesis_id").Where("account_id = ?", *scope.MemberId)
		query = query.Where("id IN (?)", memberOf)
	}

	theses, err := schema.ListTheses(query.Order("title ASC"))
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error listing theses: %v", err), http.StatusInternalServerError)
		return
	}

	visible := make([]schema.Thesis, 0, len(theses))
	ids := make([]uuid.UUID, 0, len(theses))
	for _, thesis := range theses {
		if scope.Visible(&thesis) {
			visible = append(visible, thesis)
			ids = append(ids, thesis.Id)
		}
	}

	submissions, err := schema.ListSubmissions(ids, s.db)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error listing submissions: %v", err), http.StatusInternalServerError)
		return
	}
	byThesis := groupSubmissions(submissions)

	withSubmissions := wantsSubmissions(r)

	res := make([]thesisSummary, 0, len(visible))
	for _, thesis := range visible {
		res = append(res, convertThesis(thesis, byThesis[thesis.Id], withSubmissions))
	}

	utils.WriteJsonResponse(w, res)
}

const createFormField = "thesis"

type createThesisRequest struct {
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description"`
	Phase       *int        `json:"phase"`
	Authors     []uuid.UUID `json:"authors" validate:"required"`
	Advisers    []uuid.UUID `json:"advisers" validate:"required"`
	Panelists   []uuid.UUID `json:"panelists"`
}

// parseCreateRequest accepts either a json body or a multipart form with the
// json body in the "thesis" field and optional initial files.
func parseCreateRequest(w http.ResponseWriter, r *http.Request) (createThesisRequest, []*multipart.FileHeader, bool) {
	var params createThesisRequest
	if !utils.IsMultipart(r) {
		return params, nil, utils.ParseRequestBody(w, r, &params)
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		utils.WriteError(w, fmt.Sprintf("error parsing multipart form: %v", err), http.StatusBadRequest)
		return params, nil, false
	}
	if !utils.ParseFormJson(w, r.MultipartForm, createFormField, &params) {
		return params, nil, false
	}
	return params, r.MultipartForm.File[uploadFormField], true
}

func (s *ThesisService) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	params, files, ok := parseCreateRequest(w, r)
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				slog.Error("error removing temporary upload files", "error", err)
			}
		}()
	}
	if !ok {
		return
	}

	members := workflow.Members{Authors: params.Authors, Advisers: params.Advisers, Panelists: params.Panelists}
	if err := workflow.CheckCreate(params.Title, members, actor); err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	phase := workflow.FirstPhase
	if params.Phase != nil {
		if !workflow.ValidPhase(*params.Phase) {
			utils.WriteError(w, fmt.Sprintf("invalid phase %d", *params.Phase), http.StatusBadRequest)
			return
		}
		phase = *params.Phase
	}

	now := s.now().UTC()
	approved := actor.IsAdmin()
	thesis := schema.Thesis{
		Id:          uuid.New(),
		Title:       params.Title,
		Description: params.Description,
		Phase:       phase,
		Status:      workflow.New,
		Approved:    &approved,
		CreatedAt:   now,
	}

	// Initial files become the first submission of the thesis. They are not
	// subject to the submission deadline.
	var initial []schema.Submission
	var attachments []schema.Attachment
	if len(files) > 0 {
		var incoming int64
		for _, f := range files {
			incoming += f.Size
		}
		if err := checkSufficientStorage(s.storage, incoming); err != nil {
			utils.WriteError(w, err.Error(), GetResponseCode(err))
			return
		}

		submission := schema.Submission{Id: uuid.New(), ThesisId: thesis.Id, SubmitterId: actor.Id, Phase: phase, Submitted: now}
		var err error
		attachments, err = s.storeFiles(r.Context(), thesis.Id, submission.Id, files)
		if err != nil {
			utils.WriteError(w, err.Error(), GetResponseCode(err))
			return
		}
		submission.Attachments = attachments
		initial = append(initial, submission)
	}

	var created schema.Thesis
	err := s.db.Transaction(func(txn *gorm.DB) error {
		accounts, err := schema.GetAccounts(members.All(), txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if err := members.CheckAccounts(accounts); err != nil {
			return ruleError(err)
		}

		result := txn.Omit("Members", "Grades").Create(&thesis)
		if result.Error != nil {
			slog.Error("sql error creating thesis", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		rows := members.Rows(thesis.Id)
		result = txn.Omit("Thesis", "Account").Create(&rows)
		if result.Error != nil {
			slog.Error("sql error creating thesis members", "thesis_id", thesis.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for i := range initial {
			result = txn.Omit("Thesis", "Submitter").Create(&initial[i])
			if result.Error != nil {
				slog.Error("sql error creating initial submission", "thesis_id", thesis.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		created, err = loadThesis(txn, thesis.Id)
		return err
	})
	if err != nil {
		s.removeFiles(attachments)
		utils.WriteError(w, fmt.Sprintf("error creating thesis: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created thesis", "thesis_id", created.Id, "account_id", actor.Id, "approved", approved, "phase", phase, "files", len(attachments), "code", logging.THESIS_CREATE)

	utils.WriteCreated(w, thesisLocation(created.Id), convertThesisDetail(created, initial, len(initial) > 0))
}

func (s *ThesisService) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	thesis, err := loadVisibleThesis(s.db, thesisId, actor)
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	submissions, err := schema.ListSubmissions([]uuid.UUID{thesis.Id}, s.db)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error loading submissions: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertThesisDetail(thesis, submissions, wantsSubmissions(r)))
}

type updateThesisRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Status      *string      `json:"status"`
	Phase       *int         `json:"phase"`
	Authors     *[]uuid.UUID `json:"authors"`
	Advisers    *[]uuid.UUID `json:"advisers"`
	Panelists   *[]uuid.UUID `json:"panelists"`
}

func (p *updateThesisRequest) replacesMembers() bool {
	return p.Authors != nil || p.Advisers != nil || p.Panelists != nil
}

func (s *ThesisService) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateThesisRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		thesis, err := loadThesis(txn, thesisId)
		if err != nil {
			return err
		}

		previousStatus := thesis.Status
		patch := workflow.Patch{Title: params.Title, Description: params.Description, Status: params.Status, Phase: params.Phase}
		if err := workflow.ApplyPatch(&thesis, patch, actor); err != nil {
			return ruleError(err)
		}

		if params.replacesMembers() {
			if err := s.replaceMembers(txn, &thesis, params); err != nil {
				return err
			}
		}

		if err := saveThesisFields(txn, &thesis); err != nil {
			return err
		}

		if thesis.Status != previousStatus {
			transitionMetric.WithLabelValues(thesis.Status).Inc()
			slog.Info("thesis status changed", "thesis_id", thesis.Id, "from", previousStatus, "to", thesis.Status, "account_id", actor.Id, "code", logging.THESIS_UPDATE)
		}
		return nil
	})
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error updating thesis: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteNoContent(w)
}

func (s *ThesisService) replaceMembers(txn *gorm.DB, thesis *schema.Thesis, params updateThesisRequest) error {
	members := workflow.MembersOf(thesis)
	if params.Authors != nil {
		members.Authors = *params.Authors
	}
	if params.Advisers != nil {
		members.Advisers = *params.Advisers
	}
	if params.Panelists != nil {
		members.Panelists = *params.Panelists
	}

	if err := members.Validate(); err != nil {
		return ruleError(err)
	}

	accounts, err := schema.GetAccounts(members.All(), txn)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if err := members.CheckAccounts(accounts); err != nil {
		return ruleError(err)
	}

	result := txn.Where("thesis_id = ?", thesis.Id).Delete(&schema.ThesisMember{})
	if result.Error != nil {
		slog.Error("sql error clearing thesis members", "thesis_id", thesis.Id, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	rows := members.Rows(thesis.Id)
	result = txn.Omit("Thesis", "Account").Create(&rows)
	if result.Error != nil {
		slog.Error("sql error replacing thesis members", "thesis_id", thesis.Id, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return nil
}

func (s *ThesisService) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		thesis, err := loadThesis(txn, thesisId)
		if err != nil {
			return err
		}

		outcome, err := workflow.Delete(&thesis, actor)
		if err != nil {
			return ruleError(err)
		}

		if err := saveThesisFields(txn, &thesis); err != nil {
			return err
		}

		if outcome == workflow.Deactivated {
			slog.Info("deactivated unapproved thesis", "thesis_id", thesis.Id, "code", logging.THESIS_DELETE)
		} else {
			slog.Info("locked approved thesis instead of deleting", "thesis_id", thesis.Id, "code", logging.THESIS_DELETE)
		}
		return nil
	})
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error deleting thesis: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteNoContent(w)
}
