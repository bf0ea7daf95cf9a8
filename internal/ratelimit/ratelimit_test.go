package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPerMinute(t *testing.T) {
	p := PerMinute(2)
	assert.True(t, p.Allow("a"))
	assert.True(t, p.Allow("a"))
	assert.False(t, p.Allow("a"))
	assert.True(t, p.Allow("b"), "buckets are per IP")

	assert.Equal(t, 0, p.Forget(time.Minute))
	assert.Equal(t, 2, p.Forget(-1))
	assert.True(t, p.Allow("a"), "forgotten IP starts with a full bucket")
}

func TestDisabled(t *testing.T) {
	p := PerMinute(0)
	for i := 0; i < 100; i++ {
		assert.True(t, p.Allow("a"))
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/contact", PerMinute(1).Middleware(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
