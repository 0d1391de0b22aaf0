package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	logger, err := New("debug", "text")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("unexpected level %s", logger.GetLevel())
	}
}

func TestMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "info", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/v1/verifiers/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/verifiers/abc", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["path"] != "/v1/verifiers/:id" || line["method"] != "GET" {
		t.Fatalf("unexpected fields %v", line)
	}
	if line["status"] != float64(http.StatusNotFound) || line["level"] != "warning" {
		t.Fatalf("unexpected status/level %v", line)
	}
}
