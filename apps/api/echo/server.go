package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	"github.com/trezcool/pamoja/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		UserSvc        user.ServiceInterface
		OrgSvc         org.ServiceInterface
		MembershipSvc  membership.ServiceInterface
		BranchSvc      branch.ServiceInterface
		PartnershipSvc partnership.ServiceInterface
		Policy         *access.Policy
		Scope          *access.Scope

		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan struct{}
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan struct{}, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts)
	registerOrgAPI(v1, jwt, s.opts)
	registerMembershipAPI(v1, jwt, s.opts)
	registerBranchAPI(v1, jwt, s.opts)
	registerPartnershipAPI(v1, jwt, s.opts)
}

func (s *server) signalShutdown() {
	s.shutdown <- struct{}{}
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Pamoja API!")
}
