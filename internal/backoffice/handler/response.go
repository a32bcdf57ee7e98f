package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Admin responses reuse the public API envelope so operator tooling can share
// one client.  List responses additionally carry paging metadata and a
// generation timestamp, since dashboards poll these endpoints and cache rows.

// listMeta is the paging block attached to every admin list response.
type listMeta struct {
	Total       int       `json:"total"`
	Page        int       `json:"page"`
	Limit       int       `json:"limit"`
	Pages       int       `json:"pages"`
	GeneratedAt time.Time `json:"generated_at"`
}

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": listMeta{
			Total:       total,
			Page:        page,
			Limit:       limit,
			Pages:       pages,
			GeneratedAt: time.Now().UTC(),
		},
	})
}

// adminPagination reads page/limit with operator-friendly defaults: admin
// tables show 50 rows and cap at 500 per request.
func adminPagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return page, limit
}
