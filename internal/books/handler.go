package books

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	ulid "github.com/oklog/ulid/v2"

	"libris-backend/internal/platform/db"
)

type Handler struct {
	svc     *Service
	uploads db.UploadsConfig
}

func RegisterRoutes(r *gin.RouterGroup, svc *Service, uploads db.UploadsConfig, authn, staff gin.HandlerFunc) {
	h := &Handler{svc: svc, uploads: uploads}

	r.GET("/books", h.List)
	r.GET("/books/most-borrowed", authn, staff, h.MostBorrowed)
	r.GET("/books/:id", h.GetByID)
	r.POST("/books", authn, staff, h.Create)
	r.POST("/books/cover", authn, staff, h.UploadCover)
	r.PUT("/books/:id", authn, staff, h.Update)
	r.PATCH("/books/:id/quantity", authn, staff, h.ReduceQuantity)
	r.DELETE("/books/:id", authn, staff, h.Remove)
}

// ---------- handlers ----------

func (h *Handler) List(c *gin.Context) {
	page := atoiDef(c.Query("page"), 1)
	pageSize := atoiDef(c.Query("pageSize"), 20)

	res, err := h.svc.List(c.Request.Context(), c.Query("query"), page, pageSize)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetByID(c *gin.Context) {
	res, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/books/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}

	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ReduceQuantity(c *gin.Context) {
	var req ReduceQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}

	deleted, err := h.svc.ReduceQuantity(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) Remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) MostBorrowed(c *gin.Context) {
	limit := atoiDef(c.Query("limit"), 5)

	res, err := h.svc.MostBorrowed(c.Request.Context(), limit)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

var coverExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
}

// UploadCover stores a cover image under the uploads dir with a ULID
// filename and returns its public URL. The caller links it to a book via
// PUT /books/:id.
func (h *Handler) UploadCover(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "file is required"))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := coverExts[ext]; !ok {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "unsupported image type"))
		return
	}

	name := ulid.Make().String() + ext
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploads.Dir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, apiErr(CodeInternal, "failed to store file"))
		return
	}

	c.JSON(http.StatusCreated, UploadCoverResponse{
		URL: h.uploads.PublicBaseURL + "/uploads/" + name,
	})
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
