package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
)

type submissionApi struct {
	usrSvc   user.ServiceInterface
	svc      submission.ServiceInterface
	gradeSvc grading.ServiceInterface
}

func registerSubmissionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.ServiceInterface,
	svc submission.ServiceInterface,
	gradeSvc grading.ServiceInterface,
) {
	api := submissionApi{
		usrSvc:   usrSvc,
		svc:      svc,
		gradeSvc: gradeSvc,
	}

	sg := g.Group("/submissions", jwt, ctxUserMiddleware(usrSvc))
	sg.GET("", api.queryMine)
	sg.POST("/:id/grade", api.grade)
}

// Handlers

func (api *submissionApi) queryMine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	list, err := api.svc.QueryByStudent(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *submissionApi) grade(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.gradeSvc.GradeSubmission(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, res)
}
