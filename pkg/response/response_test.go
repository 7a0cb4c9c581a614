package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestJSONWithMeta(t *testing.T) {
	c, rec := testContext()

	JSON(c, http.StatusOK, []string{"a"}, map[string]interface{}{"total": 1})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":["a"],"meta":{"total":1}}`, rec.Body.String())
}

func TestErrorListsValidationFields(t *testing.T) {
	type payload struct {
		LessonsPerDay int `validate:"required,min=1"`
	}
	verr := validator.New().Struct(payload{})
	require.Error(t, verr)

	c, rec := testContext()
	Error(c, appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable dataset"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env struct {
		Error   appErrors.Error `json:"error"`
		Details []FieldError    `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	require.Len(t, env.Details, 1)
	assert.Equal(t, FieldError{Field: "payload.LessonsPerDay", Rule: "required"}, env.Details[0])
}

func TestErrorNormalisesPlainErrors(t *testing.T) {
	c, rec := testContext()

	Error(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "details")
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestAttachment(t *testing.T) {
	c, rec := testContext()

	Attachment(c, "timetable.csv", "text/csv", []byte("a,b\n"))

	assert.Equal(t, `attachment; filename="timetable.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
