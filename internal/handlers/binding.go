package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validation errors report the JSON key of a field
// instead of its Go name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondFail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   validationMessage(verrs),
		"fields":  fields,
	})
	return false
}

func validationMessage(verrs validator.ValidationErrors) string {
	allRequired := true
	for _, fe := range verrs {
		if fe.Tag() != "required" {
			allRequired = false
			break
		}
	}
	if allRequired {
		return "Missing required fields"
	}

	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			continue
		case "email":
			return "Invalid email address"
		case "min":
			if fe.Kind() == reflect.String {
				return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
			}
			return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			if fe.Kind() == reflect.String {
				return fmt.Sprintf("%s cannot exceed %s characters", fe.Field(), fe.Param())
			}
			return fmt.Sprintf("%s cannot exceed %s", fe.Field(), fe.Param())
		case "gt":
			return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
		default:
			return "Invalid value for " + fe.Field()
		}
	}
	return "Invalid request body"
}
