package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head><title>QuickBites</title></head>
<body style="font-family: Arial, sans-serif; background-color: #fff3e0;">
  <div style="max-width: 500px; margin: 30px auto; background: #ffffff; padding: 20px; border-top: 5px solid #ff6600; text-align: center;">
    <div style="background-color: #ff6600; color: #ffffff; padding: 15px; font-size: 22px; font-weight: bold;">QuickBites - Online Dining Solutions</div>
    <div style="font-size: 16px; color: #333333; margin: 20px 0;">
      <p>Hello {{.Name}},</p>
      <p>{{.Lead}}</p>
      {{if .Code}}<div style="font-size: 24px; font-weight: bold; color: #ffffff; background: #ff6600; padding: 10px 20px; display: inline-block; letter-spacing: 2px;">{{.Code}}</div>
      <p>This code is valid for only {{.Validity}}. Do not share it with anyone.</p>
      <p>If you did not request this, please ignore this email.</p>{{end}}
    </div>
  </div>
</body>
</html>`))

type view struct {
	Name     string
	Lead     string
	Code     string
	Validity string
}

// LoginCode renders the second-factor login email.
func LoginCode(to, name, code string, validity time.Duration) (Message, error) {
	return render(to, "Your QuickBites login code", view{
		Name: name, Lead: "Your one-time code for login is:", Code: code, Validity: formatValidity(validity),
	})
}

// ResetCode renders the password-reset email.
func ResetCode(to, name, code string, validity time.Duration) (Message, error) {
	return render(to, "Your QuickBites password reset code", view{
		Name: name, Lead: "Your one-time code for resetting your password is:", Code: code, Validity: formatValidity(validity),
	})
}

// Welcome renders the post-registration email.
func Welcome(to, name string) (Message, error) {
	return render(to, "Welcome to QuickBites", view{
		Name: name, Lead: "Your account is ready. Hungry? We deliver.",
	})
}

func render(to, subject string, v view) (Message, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, v); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}

func formatValidity(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
