package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dushixiang/preview-assembler/pkg/assembler"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zhTranslations "github.com/go-playground/validator/v10/translations/zh"
)

func newValidator() (*validator.Validate, ut.Translator, error) {
	zhLocale := zh.New()
	uni := ut.New(zhLocale, zhLocale)
	trans, _ := uni.GetTranslator("zh")

	validate := validator.New()
	// 错误信息中使用 yaml 字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := zhTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, err
	}
	return validate, trans, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	validate, trans, err := newValidator()
	if err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				messages = append(messages, fe.Translate(trans))
			}
			return fmt.Errorf("配置校验失败: %s", strings.Join(messages, "; "))
		}
		return err
	}

	if _, err := assembler.RenderMarker(c.MarkerFormat, c.Fragments[0].Name); err != nil {
		return fmt.Errorf("配置校验失败: marker_format: %w", err)
	}
	return nil
}
