package views

import (
	"github.com/rivo/tview"
)

// Login is the email/password form shown when no credentials exist.
type Login struct {
	*tview.Form
	onSubmit func(email, password string)
}

// NewLogin creates the login form.
func NewLogin() *Login {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" Sign in to Swappio ")

	l := &Login{Form: form}

	form.AddInputField("Email", "", 40, nil, nil)
	form.AddPasswordField("Password", "", 40, '*', nil)
	form.AddButton("Sign in", func() {
		if l.onSubmit == nil {
			return
		}
		email := form.GetFormItemByLabel("Email").(*tview.InputField).GetText()
		password := form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
		l.onSubmit(email, password)
	})

	return l
}

// SetOnSubmit sets the callback when the form is submitted.
func (l *Login) SetOnSubmit(fn func(email, password string)) {
	l.onSubmit = fn
}
