package notifications

import (
	"bytes"
	"fmt"
	"html/template"
)

// Mail templates.
const (
	TemplateVerification  = "verification"
	TemplatePasswordReset = "password_reset"
)

var subjects = map[string]string{
	TemplateVerification:  "[LastDay] 이메일 인증 코드",
	TemplatePasswordReset: "[LastDay] 임시 비밀번호 안내",
}

var templates = template.Must(template.New("mail").Parse(`
{{define "verification"}}<html><body>
<p>{{.Name}}님, LastDay 가입을 환영합니다.</p>
<p>인증 코드: <strong>{{.Code}}</strong></p>
</body></html>{{end}}
{{define "password_reset"}}<html><body>
<p>{{.Name}}님의 임시 비밀번호입니다.</p>
<p><strong>{{.Password}}</strong></p>
<p>로그인 후 비밀번호를 변경해 주세요.</p>
</body></html>{{end}}
`))

// VerificationData fills the verification template.
type VerificationData struct {
	Name string
	Code string
}

// PasswordResetData fills the password reset template.
type PasswordResetData struct {
	Name     string
	Password string
}

func render(name string, data any) (subject, body string, err error) {
	subject, ok := subjects[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return subject, buf.String(), nil
}
