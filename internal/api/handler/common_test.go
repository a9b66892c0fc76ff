package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/toolbox_server/internal/entitlement"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/service"
)

func TestRespondError_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", service.ErrToolNotFound, response.CodeResourceNotFound},
		{"permission", service.ErrCannotModifySelf, response.CodePermissionDenied},
		{"duplicate", service.ErrPlanNameExists, response.CodeDuplicateAction},
		{"invalid configuration", service.ErrFreePlanProtected, response.CodeInvalidConfig},
		{"param", service.ErrInvalidPayload, response.CodeParamError},
		{"verify code", service.ErrInvalidVerifyCode, response.CodeParamError},
		{"credentials", service.ErrInvalidCredentials, response.CodeAuthFailed},
		{"refresh", service.ErrInvalidRefresh, response.CodeAuthFailed},
		{"upstream", fmt.Errorf("list usages: %w: %w", service.ErrUpstreamUnavailable, errors.New("connection refused")), response.CodeUpstreamUnavailable},
		{"other", errors.New("boom"), response.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/test", func(c *gin.Context) { respondError(c, tt.err) })

			w := performRequest(router, "GET", "/test", nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.code, parseResponse(t, w).Code)
		})
	}
}

func TestRespondError_EntitlementDenied(t *testing.T) {
	reason := entitlement.ReasonUsageLimitReached
	err := fmt.Errorf("start usage: %w", &service.EntitlementDeniedError{
		Reason:   reason,
		Decision: entitlement.Decision{HasAccess: false, Reason: &reason, RemainingUses: entitlement.RemainingCount(0)},
	})

	router := gin.New()
	router.GET("/test", func(c *gin.Context) { respondError(c, err) })

	w := performRequest(router, "GET", "/test", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeEntitlementDenied, resp.Code)
	assert.Equal(t, reason, resp.Message)
	data := dataMap(t, resp)
	assert.Equal(t, false, data["has_access"])
	assert.Equal(t, float64(0), data["remaining_uses"])
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, 20},
		{"?page=3&page_size=50", 3, 50},
		{"?page=0&page_size=500", 1, 20},
		{"?page=abc&page_size=-1", 1, 20},
	}

	for _, tt := range tests {
		router := gin.New()
		router.GET("/test", func(c *gin.Context) {
			page, pageSize := pagination(c)
			c.JSON(http.StatusOK, gin.H{"page": page, "page_size": pageSize})
		})

		w := performRequest(router, "GET", "/test"+tt.query, nil)
		var got map[string]int
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, tt.page, got["page"], tt.query)
		assert.Equal(t, tt.pageSize, got["page_size"], tt.query)
	}
}
