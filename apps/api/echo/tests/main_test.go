package tests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	"github.com/trezcool/pamoja/core/user"
	emailsvc "github.com/trezcool/pamoja/services/email"
	inmemdb "github.com/trezcool/pamoja/storage/database/inmem"

	. "github.com/trezcool/pamoja/apps/api/echo"
)

var (
	app Server

	usrRepo  user.Repository
	orgRepo  org.Repository
	memRepo  membership.Repository
	branRepo branch.Repository
	partRepo partnership.Repository
)

func TestMain(m *testing.M) {
	db, err := inmemdb.Open()
	if err != nil {
		os.Exit(1)
	}
	usrRepo = inmemdb.NewUserRepository(db)
	orgRepo = inmemdb.NewOrgRepository(db)
	memRepo = inmemdb.NewMembershipRepository(db)
	branRepo = inmemdb.NewBranchRepository(db)
	partRepo = inmemdb.NewPartnershipRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock()
	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	org.RegisterValidators(validate, translator)
	membership.RegisterValidators(validate, translator)
	partnership.RegisterValidators(validate, translator)

	app = NewServer(&Options{
		DisableReqLogs: true,
		UserSvc:        user.NewService(usrRepo, mailSvc),
		OrgSvc:         org.NewService(orgRepo),
		MembershipSvc:  membership.NewService(memRepo, usrRepo, mailSvc),
		BranchSvc:      branch.NewService(branRepo, orgRepo, memRepo, usrRepo, mailSvc),
		PartnershipSvc: partnership.NewService(partRepo, memRepo, usrRepo, mailSvc),
		Policy:         access.NewPolicy(memRepo),
		Scope:          access.NewScope(memRepo, orgRepo, usrRepo, partRepo),
		Logger:         noopLogger{},
		Validate:       validate,
		Translator:     translator,
	})

	os.Exit(m.Run())
}

type noopLogger struct{}

func (noopLogger) Enable(bool)                       {}
func (noopLogger) Debug(string, ...interface{})      {}
func (noopLogger) Info(string, ...interface{})       {}
func (noopLogger) Warn(string, ...interface{})       {}
func (noopLogger) Error(string, ...interface{})      {}
func (noopLogger) Fatal(string, ...interface{})      {}

func do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func wantCode(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("code = %d, want %d; body: %s", rec.Code, code, rec.Body.String())
	}
}
