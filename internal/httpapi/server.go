// Package httpapi serves the todo store as a JSON API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

const (
	maxBodySize = 64 << 10
	actorKey    = "actor"
)

// Authenticator resolves the Authorization header to an actor id.
type Authenticator interface {
	ActorFromHeader(h string) (string, error)
}

type Options struct {
	// Auth may be nil, in which case every request is ownerless.
	Auth     Authenticator
	Logger   *log.Logger
	Rollback bool
}

// Server builds a fresh store over the shared adapter for each request.
type Server struct {
	echo    *echo.Echo
	adapter todo.Adapter
	auth    Authenticator
	logger  *log.Logger
	opts    []todo.Option
}

func New(a todo.Adapter, opt Options) *Server {
	logger := opt.Logger
	if logger == nil {
		logger = log.New()
		logger.SetOutput(io.Discard)
	}
	s := &Server{
		adapter: a,
		auth:    opt.Auth,
		logger:  logger,
		opts:    []todo.Option{todo.WithLogger(logger), todo.WithRollback(opt.Rollback)},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	Register(e, s)
	s.echo = e
	return s
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, s *Server) {
	e.GET("/healthz", healthz)
	g := e.Group("/api", s.authenticate)
	g.GET("/todos", s.listTodos)
	g.POST("/todos", s.createTodo)
	g.PATCH("/todos/:id", s.patchTodo)
	g.DELETE("/todos/:id", s.deleteTodo)
}

func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.echo.Start(addr) }()
	s.logger.WithField("addr", addr).Info("serving")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.auth == nil {
			c.Set(actorKey, "")
			return next(c)
		}
		actor, err := s.auth.ActorFromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
		}
		c.Set(actorKey, actor)
		return next(c)
	}
}

func actorOf(c echo.Context) string {
	actor, _ := c.Get(actorKey).(string)
	return actor
}

type errorBody struct {
	Error string `json:"error"`
}

type listResponse struct {
	Todos []model.Todo `json:"todos"`
}

type createRequest struct {
	Title   string `json:"title"`
	DueDate string `json:"dueDate"`
}

type patchRequest struct {
	Title  *string `json:"title"`
	Toggle bool    `json:"toggle"`
}

func healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) store() *todo.Store { return todo.New(s.adapter, s.opts...) }

func (s *Server) listTodos(c echo.Context) error {
	f, err := view.ParseFilter(c.QueryParam("filter"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	srt, err := view.ParseSort(c.QueryParam("sort"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	items, err := s.store().Load(c.Request().Context(), view.Query{Owner: actorOf(c), Filter: f, Sort: srt})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, listResponse{Todos: items})
}

func (s *Server) createTodo(c echo.Context) error {
	var req createRequest
	if err := decode(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	due, err := model.ParseDue(req.DueDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	t, err := s.store().Add(c.Request().Context(), req.Title, due, actorOf(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) patchTodo(c echo.Context) error {
	var req patchRequest
	if err := decode(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	if req.Title == nil && !req.Toggle {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "nothing to change"})
	}
	ctx := c.Request().Context()
	id, actor := c.Param("id"), actorOf(c)
	st := s.store()
	if _, err := st.Load(ctx, view.Query{}); err != nil {
		return s.fail(c, err)
	}

	current, ok := st.Get(id)
	if !ok {
		return s.fail(c, todo.ErrNotFound)
	}
	if !current.OwnedBy(actor) {
		return s.fail(c, todo.ErrUnauthorized)
	}
	current, err := st.Update(ctx, id, actor, req.Title, req.Toggle)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, current)
}

func (s *Server) deleteTodo(c echo.Context) error {
	ctx := c.Request().Context()
	st := s.store()
	if _, err := st.Load(ctx, view.Query{}); err != nil {
		return s.fail(c, err)
	}
	if err := st.Delete(ctx, c.Param("id"), actorOf(c)); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// fail maps store errors to status codes.
func (s *Server) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, todo.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, todo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, todo.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, todo.ErrPersistence):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	msg := err.Error()
	if status == http.StatusBadGateway {
		msg = "storage unavailable"
	}
	return c.JSON(status, errorBody{Error: msg})
}
