package presenter

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error      string   `json:"error"`
	Field      string   `json:"field,omitempty"`
	Stage      string   `json:"stage,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// InvalidField reports a request field that could not be accepted.
func InvalidField(c echo.Context, field string, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: field})
}

// Rejected reports media the classifier refused. The client clears the
// listed fields and asks the user again.
func Rejected(c echo.Context, err error, fields, categories []string) error {
	return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Fields: fields, Categories: categories})
}

func Unavailable(c echo.Context, msg string) error {
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: msg})
}

func InternalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// StageError reports a multi-step write that stopped at stage.
func StageError(c echo.Context, stage string, err error) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), Stage: stage})
}
