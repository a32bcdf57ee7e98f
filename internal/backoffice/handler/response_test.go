package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRespondList_Meta(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)

	respondList(c, []string{"a", "b"}, 120, 2, 50)

	var body struct {
		Success bool `json:"success"`
		Meta    struct {
			Total int `json:"total"`
			Page  int `json:"page"`
			Limit int `json:"limit"`
			Pages int `json:"pages"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success {
		t.Error("success = false, want true")
	}
	// 120 rows at 50 per page fill 3 pages.
	if body.Meta.Pages != 3 {
		t.Errorf("pages = %d, want 3", body.Meta.Pages)
	}
	if body.Meta.Total != 120 || body.Meta.Page != 2 || body.Meta.Limit != 50 {
		t.Errorf("meta = %+v", body.Meta)
	}
}

func TestAdminPagination_Clamps(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 50},
		{"?page=3&limit=100", 3, 100},
		{"?page=0&limit=0", 1, 50},
		{"?page=-2&limit=9999", 1, 50},
		{"?limit=500", 1, 500},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/admin/accounts"+tt.query, nil)
		page, limit := adminPagination(c)
		if page != tt.wantPage || limit != tt.wantLimit {
			t.Errorf("adminPagination(%q) = (%d, %d), want (%d, %d)",
				tt.query, page, limit, tt.wantPage, tt.wantLimit)
		}
	}
}
