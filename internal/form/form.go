// Package form はログイン・登録フォームの入力検証を提供する。
// 検証エラーがある場合、認証プロバイダは呼び出されない。
package form

import (
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LoginInput はログインフォームの入力値。送信後は破棄する。
type LoginInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// RegisterInput は登録フォームの入力値。送信後は破棄する。
type RegisterInput struct {
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"min=6"`
	ConfirmPassword string `form:"confirmPassword" validate:"eqfield=Password"`
}

// Errors はフィールド名からエラーメッセージへの対応。
type Errors map[string]string

// Has は指定フィールドにエラーがあるかどうかを返す。
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// フィールド・タグごとのエラーメッセージ。
var messages = map[string]string{
	"email.required":          "Invalid email address.",
	"email.email":             "Invalid email address.",
	"password.required":       "Password is required.",
	"password.min":            "Password must be at least 6 characters.",
	"confirmPassword.eqfield": "Passwords don't match.",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateLogin はログイン入力を検証する。問題がなければnilを返す。
func ValidateLogin(in LoginInput) Errors {
	return check(in)
}

// ValidateRegister は登録入力を検証する。
// パスワード不一致のエラーはconfirmPasswordにのみ付与される。
func ValidateRegister(in RegisterInput) Errors {
	return check(in)
}

func check(in any) Errors {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errors{"form": "Invalid input."}
	}

	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, exists := out[field]; exists {
			continue
		}
		msg, ok := messages[field+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value."
		}
		out[field] = msg
	}
	return out
}

// DecodeLogin はリクエストのフォーム値からLoginInputを組み立てる。
func DecodeLogin(r *http.Request) (LoginInput, error) {
	if err := r.ParseForm(); err != nil {
		return LoginInput{}, err
	}
	return LoginInput{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}, nil
}

// DecodeRegister はリクエストのフォーム値からRegisterInputを組み立てる。
func DecodeRegister(r *http.Request) (RegisterInput, error) {
	if err := r.ParseForm(); err != nil {
		return RegisterInput{}, err
	}
	return RegisterInput{
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}, nil
}

// ValidationError は入力検証に失敗したことを示す。
type ValidationError struct {
	Fields Errors
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid input: " + strings.Join(keys, ", ")
}
