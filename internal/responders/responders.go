// Package responders provides the actions stand-in endpoints use to build
// their replies: static bodies, sprig templates over the received message,
// status codes, headers and planned failures.
package responders

import (
	"errors"
	"fmt"

	"choreo/internal/message"
	"choreo/internal/template"
)

// Static sets the reply body.
func Static(body string) message.Responder {
	return message.ResponderFunc(func(_ *message.Message, resp *message.Message) error {
		resp.Body = []byte(body)
		return nil
	})
}

// Status sets the reply status code.
func Status(code int) message.Responder {
	return message.ResponderFunc(func(_ *message.Message, resp *message.Message) error {
		resp.Status = code
		return nil
	})
}

// Header sets a reply header to a fixed value.
func Header(name, value string) message.Responder {
	return message.ResponderFunc(func(_ *message.Message, resp *message.Message) error {
		resp.SetHeader(name, value)
		return nil
	})
}

// Echo copies the received body and headers into the reply.
func Echo() message.Responder {
	return message.ResponderFunc(func(req *message.Message, resp *message.Message) error {
		resp.Body = append([]byte(nil), req.Body...)
		for k, v := range req.Headers {
			resp.SetHeader(k, v)
		}
		return nil
	})
}

// Template renders the reply body from a template. The template sees vars
// at the top level and the received message under .request.
func Template(engine *template.Engine, source string, vars map[string]interface{}) (message.Responder, error) {
	if err := engine.Compile(source); err != nil {
		return nil, fmt.Errorf("body template: %w", err)
	}
	return message.ResponderFunc(func(req *message.Message, resp *message.Message) error {
		body, err := engine.Render(source, template.MessageContext(req, vars))
		if err != nil {
			return err
		}
		resp.Body = []byte(body)
		return nil
	}), nil
}

// HeaderTemplate sets a reply header rendered from a template.
func HeaderTemplate(engine *template.Engine, name, source string, vars map[string]interface{}) (message.Responder, error) {
	if err := engine.Compile(source); err != nil {
		return nil, fmt.Errorf("header %s template: %w", name, err)
	}
	return message.ResponderFunc(func(req *message.Message, resp *message.Message) error {
		value, err := engine.Render(source, template.MessageContext(req, vars))
		if err != nil {
			return err
		}
		resp.SetHeader(name, value)
		return nil
	}), nil
}

// Failure returns a factory producing the error a failing endpoint replies
// with. It is meant for expectation.Builder.AddFailureResponder.
func Failure(reason string) func() error {
	return func() error {
		if reason == "" {
			return nil
		}
		return errors.New(reason)
	}
}
