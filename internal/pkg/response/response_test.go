package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "medlink-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", xerrors.ErrNotFound), http.StatusNotFound},
		{&xerrors.LimitReachedError{Limit: 1, Used: 1}, http.StatusForbidden},
		{&xerrors.SlotRangeError{Kind: xerrors.RangeOverlap}, http.StatusConflict},
		{&xerrors.SlotRangeError{Kind: xerrors.RangeOutOfBounds}, http.StatusUnprocessableEntity},
		{xerrors.ErrInvalidSignature, http.StatusBadRequest},
		{xerrors.ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFromErrorIncludesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, "patient limit reached", &xerrors.LimitReachedError{
		EntityType: "hospital",
		Resource:   "patients",
		Used:       10,
		Limit:      10,
		ResetDate:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	require.Equal(t, http.StatusForbidden, w.Code)

	var body struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.EqualValues(t, 10, body.Data["limit"])
	assert.EqualValues(t, 10, body.Data["used"])
}

func TestFromErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, "failed", fmt.Errorf("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
