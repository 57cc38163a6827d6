package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = newValidator()

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks the fields a mail-merge run needs: the sender, the input
// files, logging and the credentials of the selected transport only.
func (c *Config) Validate() error {
	var msgs []string

	collect := func(s any) {
		err := validate.Struct(s)
		if err == nil {
			return
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			msgs = append(msgs, err.Error())
			return
		}
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
	}

	if err := validate.Var(c.Transport, "oneof=smtp ses graph resend stdout"); err != nil {
		msgs = append(msgs, fmt.Sprintf("TRANSPORT must be one of smtp, ses, graph, resend, stdout, got %q", c.Transport))
	}
	collect(c.Sender)
	collect(c.Input)
	collect(c.Logging)

	switch c.Transport {
	case TransportSMTP:
		collect(c.SMTP)
	case TransportSES:
		collect(c.SES)
	case TransportGraph:
		collect(c.Graph)
	case TransportResend:
		collect(c.Resend)
	}

	if len(msgs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s, got %q", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s is out of range: %v", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
