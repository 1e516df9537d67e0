package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/models"
)

func respond(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/rounds/r1/bets", nil)
	respondError(c, zap.NewNop(), "Failed to place bet", err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("round r1: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("round r1 is finalized: %w", models.ErrConflict), http.StatusConflict},
		{fmt.Errorf("stake: %w", models.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("balance: %w", models.ErrInsufficientFunds), http.StatusPaymentRequired},
		{fmt.Errorf("seed 1: %w", models.ErrExhausted), http.StatusServiceUnavailable},
		{fmt.Errorf("commit: %w", models.ErrTransient), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, body := respond(t, tc.err)
		require.Equal(t, tc.status, code, tc.err.Error())
		require.Equal(t, string(models.Kind(tc.err)), body["kind"])
	}
}

func TestRespondErrorHidesDriverText(t *testing.T) {
	driverErr := &pq.Error{Code: "40001", Message: `could not serialize access due to concurrent update on relation "users"`}
	err := fmt.Errorf("commit transaction: %v: %w", driverErr, models.ErrTransient)

	code, body := respond(t, err)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "transient", body["kind"])
	require.NotContains(t, body, "details")

	raw, marshalErr := json.Marshal(body)
	require.NoError(t, marshalErr)
	require.False(t, strings.Contains(string(raw), "serialize"), string(raw))

	_, body = respond(t, errors.New("pq: relation \"bets\" does not exist"))
	require.NotContains(t, body, "details")

	_, body = respond(t, fmt.Errorf("ticket 07 already sold: %w", models.ErrConflict))
	require.Equal(t, "ticket 07 already sold: conflict", body["details"])
}
