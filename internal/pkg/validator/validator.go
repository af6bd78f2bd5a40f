package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"battle-tracker/internal/pkg/xerrors"
)

var battleIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// CustomValidator wraps go-playground validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return xerrors.NewValidationError(first.Namespace(), describe(first)).
			WithMetadata("error_count", len(fieldErrs))
	}
	return xerrors.NewValidationError("request", err.Error())
}

// New creates a new custom validator instance
func New() echo.Validator {
	return &CustomValidator{validator: NewValidate()}
}

// NewValidate 带业务规则的底层校验器
func NewValidate() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("battle_id", validateBattleID)
	_ = v.RegisterValidation("log_line", validateLogLine)
	return v
}

// IsBattleID 战斗 ID: 32 位小写十六进制
func IsBattleID(s string) bool {
	return battleIDPattern.MatchString(s)
}

func validateBattleID(fl validator.FieldLevel) bool {
	return IsBattleID(fl.Field().String())
}

// validateLogLine 单行日志, 不允许内嵌换行
func validateLogLine(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), "\r\n")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "battle_id":
		return "must be a 32-character hex battle id"
	case "log_line":
		return "must be a single line"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
