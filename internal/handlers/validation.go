package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	appErrors "github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/response"
	"github.com/cooktodor/notifier/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and applies its validate
// tags. On failure a 400 is written and false returned; field failures are
// listed under error.details.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	err := validator.Struct(dest)
	if err == nil {
		return true
	}

	var failures validator.FieldErrors
	if errors.As(err, &failures) {
		response.Error(c, appErrors.NewBadRequest(failures.Error()).WithDetails(failures))
		return false
	}

	response.Error(c, appErrors.NewBadRequest("invalid request payload"))
	return false
}
