// Package mailer delivers magic codes by e-mail through gomail. A [Mailer]'s
// SendCode method satisfies magiccode.SendCodeFunc.
package mailer
