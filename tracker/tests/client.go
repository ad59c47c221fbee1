package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"thesis_tracker/tracker/auth"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) ConfirmPassword(password string) *httpTestRequest {
	return r.Header(auth.ConfirmPasswordHeader, password)
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

type upload struct {
	name    string
	content string
}

// Files sends the uploads as a multipart form under the "files" field.
func (r *httpTestRequest) Files(files ...upload) *httpTestRequest {
	return r.Form(nil, files...)
}

// Form sends a multipart form with plain fields followed by uploads under
// the "files" field.
func (r *httpTestRequest) Form(fields map[string]string, files ...upload) *httpTestRequest {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			panic(err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.name)
		if err != nil {
			panic(err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			panic(err)
		}
	}
	if err := writer.Close(); err != nil {
		panic(err)
	}
	r.body = body
	return r.Header("Content-Type", writer.FormDataContentType())
}

// Raw sends the request and returns the response whatever its status.
func (r *httpTestRequest) Raw() (*http.Response, error) {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return nil, fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	return w.Result(), nil
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	res, err := r.Raw()
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		content, _ := io.ReadAll(res.Body)
		return &statusError{method: r.method, endpoint: r.endpoint, status: res.StatusCode, content: string(content)}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type statusError struct {
	method   string
	endpoint string
	status   int
	content  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.status, e.content)
}

// statusOf returns the response code carried by err, 0 if there is none.
func statusOf(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.status
	}
	return 0
}

type client struct {
	api       chi.Router
	authToken string
	accountId uuid.UUID
	password  string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

func ids(clients ...client) []uuid.UUID {
	res := make([]uuid.UUID, 0, len(clients))
	for _, c := range clients {
		res = append(res, c.accountId)
	}
	return res
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) login(login loginInfo) error {
	var res struct {
		AccountId   uuid.UUID `json:"account_id"`
		Kind        string    `json:"kind"`
		AccessToken string    `json:"access_token"`
	}
	err := c.Get("/account/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AccessToken
	c.accountId = res.AccountId
	c.password = login.Password

	return nil
}

type newAccountRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Kind      string `json:"kind"`
	Password  string `json:"password"`
}

type accountView struct {
	Id        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Kind      string    `json:"kind"`
	Grade     *float64  `json:"grade"`
	Remarks   string    `json:"remarks"`
}

func (c *client) createAccount(params newAccountRequest) (accountView, error) {
	var res accountView
	err := c.Post("/account/create").Json(params).Do(&res)
	return res, err
}

func (c *client) accountInfo() (accountView, error) {
	var res accountView
	err := c.Get("/account/info").Do(&res)
	return res, err
}

type memberView struct {
	Id      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Grade   *float64  `json:"grade"`
	Remarks string    `json:"remarks"`
}

type gradeView struct {
	Date    time.Time `json:"date"`
	Value   float64   `json:"value"`
	Remarks string    `json:"remarks"`
}

type attachmentView struct {
	Id           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
}

type submissionView struct {
	Id          uuid.UUID        `json:"id"`
	Submitter   uuid.UUID        `json:"submitter"`
	Submitted   time.Time        `json:"submitted"`
	Phase       int              `json:"phase"`
	Attachments []attachmentView `json:"attachments"`
}

type thesisView struct {
	Id          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Phase       int          `json:"phase"`
	Status      string       `json:"status"`
	Approved    *bool        `json:"approved"`
	Locked      bool         `json:"locked"`
	Authors     []memberView `json:"authors"`
	Advisers    []memberView `json:"advisers"`
	Panelists   []memberView `json:"panelists"`
	Grade       *gradeView   `json:"grade"`
	Submission  struct {
		Latest *uuid.UUID `json:"latest"`
		When   *time.Time `json:"when"`
	} `json:"submission"`
	Submissions []submissionView `json:"submissions"`
	Grades      []gradeView      `json:"grades"`
}

type createThesisRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Phase       *int        `json:"phase,omitempty"`
	Authors     []uuid.UUID `json:"authors"`
	Advisers    []uuid.UUID `json:"advisers"`
	Panelists   []uuid.UUID `json:"panelists"`
}

func thesisUrl(id uuid.UUID) string {
	return fmt.Sprintf("/thesis/%v", id)
}

func (c *client) createThesis(params createThesisRequest) (thesisView, error) {
	var res thesisView
	err := c.Post("/thesis").Json(params).Do(&res)
	return res, err
}

// createThesisWithFiles sends the thesis as the "thesis" form field together
// with its initial files.
func (c *client) createThesisWithFiles(params createThesisRequest, files ...upload) (thesisView, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return thesisView{}, err
	}
	var res thesisView
	err = c.Post("/thesis").Form(map[string]string{"thesis": string(body)}, files...).Do(&res)
	return res, err
}

func (c *client) getThesisWithSubmissions(id uuid.UUID) (thesisView, error) {
	var res thesisView
	err := c.Get(thesisUrl(id) + "?getSubmissions=true").Do(&res)
	return res, err
}

func (c *client) getThesis(id uuid.UUID) (thesisView, error) {
	var res thesisView
	err := c.Get(thesisUrl(id)).Do(&res)
	return res, err
}

func (c *client) listTheses(query string) ([]thesisView, error) {
	var res []thesisView
	err := c.Get("/thesis" + query).Do(&res)
	return res, err
}

func (c *client) updateThesis(id uuid.UUID, patch map[string]interface{}) error {
	return c.Put(thesisUrl(id)).Json(patch).Do(nil)
}

func (c *client) deleteThesis(id uuid.UUID) error {
	return c.Delete(thesisUrl(id)).Do(nil)
}

// status posts to the status endpoint, confirming with the client's own password.
func (c *client) status(id uuid.UUID, body map[string]interface{}) error {
	return c.Post(thesisUrl(id) + "/status").ConfirmPassword(c.password).Json(body).Do(nil)
}

func (c *client) setDeadlines(deadlines map[string]string) error {
	return c.Post("/thesis/deadline").Json(deadlines).Do(nil)
}

func (c *client) getDeadlines() (map[string][]string, error) {
	var res map[string][]string
	err := c.Get("/thesis/deadline").Do(&res)
	return res, err
}

func (c *client) submit(id uuid.UUID, files ...upload) (submissionView, error) {
	var res submissionView
	err := c.Post(thesisUrl(id) + "/submission").Files(files...).Do(&res)
	return res, err
}

func (c *client) latestSubmission(id uuid.UUID) (submissionView, error) {
	var res submissionView
	err := c.Get(thesisUrl(id) + "/submission/latest").Do(&res)
	return res, err
}

type commentView struct {
	Id     uuid.UUID  `json:"id"`
	Author memberView `json:"author"`
	Phase  int        `json:"phase"`
	Text   string     `json:"text"`
	Sent   time.Time  `json:"sent"`
}

func (c *client) addComment(id uuid.UUID, text string) (commentView, error) {
	var res commentView
	err := c.Post(thesisUrl(id) + "/comment").Json(map[string]string{"text": text}).Do(&res)
	return res, err
}

func (c *client) listComments(id uuid.UUID) ([]commentView, error) {
	var res []commentView
	err := c.Get(thesisUrl(id) + "/comment").Do(&res)
	return res, err
}
