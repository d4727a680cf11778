package loans

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r *gin.RouterGroup, svc *Service, authn gin.HandlerFunc) {
	h := &Handler{svc: svc}

	g := r.Group("/loans", authn)
	g.POST("/borrow/:bookId", h.Borrow)
	g.POST("/return/:loanId", h.ReturnByLoan)
	g.POST("/return/book/:bookId", h.ReturnByBook)
	g.GET("/my", h.ListMyActive)
	g.GET("/my-history", h.ListMyHistory)
	g.GET("/history", h.ListHistory)
}

// ---------- handlers ----------

func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	res, err := h.svc.Borrow(c.Request.Context(), c.Param("bookId"), c.GetString(auth.CtxUserIDKey), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/loans/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ReturnByLoan(c *gin.Context) {
	var req ReturnRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	res, err := h.svc.ReturnByLoan(c.Request.Context(), c.Param("loanId"), c.GetString(auth.CtxUserIDKey), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ReturnByBook(c *gin.Context) {
	var req ReturnRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	res, err := h.svc.ReturnByBook(c.Request.Context(), c.Param("bookId"), c.GetString(auth.CtxUserIDKey), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListMyActive(c *gin.Context) {
	res, err := h.svc.ListMyActive(c.Request.Context(), c.GetString(auth.CtxUserIDKey))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

func (h *Handler) ListMyHistory(c *gin.Context) {
	page := parseIntDefault(c.Query("page"), 1)
	pageSize := parseIntDefault(c.Query("pageSize"), 20)

	res, err := h.svc.ListMyHistory(c.Request.Context(), c.GetString(auth.CtxUserIDKey), page, pageSize)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListHistory(c *gin.Context) {
	page := parseIntDefault(c.Query("page"), 1)
	pageSize := parseIntDefault(c.Query("pageSize"), 20)

	res, err := h.svc.ListHistory(c.Request.Context(),
		c.GetString(auth.CtxUserIDKey), c.GetString(auth.CtxRoleKey), page, pageSize)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

// bindOptionalJSON tolerates an empty body; return requests may omit it.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}

func parseIntDefault(s string, d int) int {
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

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var msg string
	var code Code = CodeInternal
	if api, ok := err.(*APIError); ok {
		code, msg = api.Code, api.Message
	} else {
		msg = err.Error()
	}
	return errorBody(code, msg)
}
