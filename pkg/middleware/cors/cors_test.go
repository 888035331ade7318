package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/bids", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/bids", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAllowListReflectsMatchingOrigin(t *testing.T) {
	rec := serve([]string{"https://crew.example/"}, http.MethodGet, "https://CREW.example")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://CREW.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Bid-Session")
}

func TestAllowListRejectsOtherOrigins(t *testing.T) {
	rec := serve([]string{"https://crew.example"}, http.MethodGet, "https://evil.example")

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOpenPolicyAndPreflight(t *testing.T) {
	rec := serve(nil, http.MethodOptions, "https://any.example")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Bid-Session")
	assert.Equal(t, allowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
}
