package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
)

type assignmentApi struct {
	usrSvc   user.ServiceInterface
	svc      assignment.ServiceInterface
	subSvc   submission.ServiceInterface
	gradeSvc grading.ServiceInterface
}

func registerAssignmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.ServiceInterface,
	svc assignment.ServiceInterface,
	subSvc submission.ServiceInterface,
	gradeSvc grading.ServiceInterface,
) {
	api := assignmentApi{
		usrSvc:   usrSvc,
		svc:      svc,
		subSvc:   subSvc,
		gradeSvc: gradeSvc,
	}

	ag := g.Group("/assignments", jwt, ctxUserMiddleware(usrSvc))
	ag.POST("", api.create)
	ag.GET("", api.query)
	ag.GET("/published", api.queryPublished)

	// detail endpoints
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id/publish", api.publish)
	ag.POST("/:id/submissions", api.submit)
	ag.GET("/:id/submissions", api.querySubmissions)
	ag.GET("/:id/submission", api.retrieveSubmission)
	ag.POST("/:id/grade", api.gradeAll, roleMiddleware(usrSvc, user.RoleTeacher, user.RoleAdmin))
}

// Handlers

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assignmentApi) query(ctx echo.Context) error {
	filter := new(assignment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assignment.Assignment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	list, err := api.svc.QueryByTeacher(ctx.Request().Context(), usr, *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *assignmentApi) queryPublished(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	list, err := api.svc.QueryPublished(ctx.Request().Context(), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying published assignments")
	}
	for i, a := range list {
		list[i] = visibleAssignment(usr, a)
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	return ctx.JSON(http.StatusOK, visibleAssignment(usr, a))
}

func (api *assignmentApi) publish(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.Publish(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	var data submission.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	s, err := api.subSvc.Submit(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *assignmentApi) querySubmissions(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	list, err := api.subSvc.QueryByAssignment(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *assignmentApi) retrieveSubmission(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	s, err := api.subSvc.Get(ctx.Request().Context(), usr, ctx.Param("id"), ctx.QueryParam("student_id"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *assignmentApi) gradeAll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.gradeSvc.GradeAssignment(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "grading assignment")
	}
	return ctx.JSON(http.StatusOK, res)
}

// visibleAssignment hides correct answers from anyone but the owner.
func visibleAssignment(usr user.User, a assignment.Assignment) assignment.Assignment {
	if assignment.IsOwner(usr, a) {
		return a
	}
	return a.Redacted()
}
