package users

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r *gin.RouterGroup, svc *Service, authn, staff gin.HandlerFunc) {
	h := &Handler{svc: svc}

	g := r.Group("/users", authn, staff)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.DELETE("/:id", h.Delete)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), req, c.GetString(auth.CtxRoleKey))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) List(c *gin.Context) {
	page := atoiDef(c.Query("page"), 1)
	pageSize := atoiDef(c.Query("pageSize"), 20)

	res, err := h.svc.List(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---------- helpers ----------

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiErr(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func apiErrFrom(err error) errorDTO {
	var msg string
	var code Code = CodeInternal
	if api, ok := err.(*APIError); ok {
		code, msg = api.Code, api.Message
	} else {
		msg = err.Error()
	}
	return apiErr(code, msg)
}
