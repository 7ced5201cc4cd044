package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alyxedu/alyx/core/lessonplan"
	"github.com/alyxedu/alyx/core/user"
)

type lessonPlanApi struct {
	usrSvc user.ServiceInterface
	svc    lessonplan.ServiceInterface
}

func registerLessonPlanAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc user.ServiceInterface, svc lessonplan.ServiceInterface) {
	api := lessonPlanApi{usrSvc: usrSvc, svc: svc}

	lg := g.Group("/lesson-plans", jwt, ctxUserMiddleware(usrSvc))
	lg.POST("", api.create)
	lg.GET("", api.query)
	lg.GET("/:id", api.retrieve)
	lg.POST("/:id/generate-quiz", api.generateQuiz, roleMiddleware(usrSvc, user.RoleTeacher, user.RoleAdmin))
}

// Handlers

func (api *lessonPlanApi) create(ctx echo.Context) error {
	var data lessonplan.NewLessonPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLessonPlan")
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	lp, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson plan")
	}
	return ctx.JSON(http.StatusCreated, lp)
}

func (api *lessonPlanApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	list, err := api.svc.QueryByTeacher(ctx.Request().Context(), usr, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying lesson plans")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *lessonPlanApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	lp, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson plan")
	}
	return ctx.JSON(http.StatusOK, lp)
}

func (api *lessonPlanApi) generateQuiz(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	quiz, err := api.svc.GenerateQuiz(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "generating quiz")
	}
	return ctx.JSON(http.StatusCreated, quiz)
}
