// Package proxy exposes the vendor proxy functions: POST handlers that take
// {action, ...fields}, make exactly one vendor call and answer with the
// uniform envelope.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
	"github.com/marba/synapse/internal/models"
	"github.com/marba/synapse/internal/vendor"
)

const (
	msgInvalidJSON   = "Invalid JSON in request body"
	msgNotObject     = "Request body must be a JSON object"
	msgInternalError = "Internal server error"
)

// RequestError is a client input problem answered with 400.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// Result is what an action returns on vendor success.
type Result struct {
	Key     string
	Payload any
	Echo    map[string]any
}

// Action is one entry of a proxy's action enum.
type Action struct {
	Name string
	run  func(ctx context.Context, v *validator.Validate, body []byte) (*Result, error)
}

// NewAction binds an action name to a handler taking decoded, validated params.
func NewAction[P any](name string, fn func(ctx context.Context, p P) (*Result, error)) Action {
	return Action{
		Name: name,
		run: func(ctx context.Context, v *validator.Validate, body []byte) (*Result, error) {
			var p P
			if err := decodeParams(v, body, &p); err != nil {
				return nil, err
			}
			return fn(ctx, p)
		},
	}
}

// Proxy dispatches POST bodies to its registered actions.
type Proxy struct {
	vendorName string
	actions    map[string]Action
	names      []string
	validate   *validator.Validate
	now        func() time.Time
	log        zerolog.Logger
}

// Option customises a Proxy.
type Option func(*Proxy)

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Proxy) { p.now = now }
}

// New builds a proxy for vendorName with the given actions, in enum order.
func New(vendorName string, actions []Action, opts ...Option) *Proxy {
	p := &Proxy{
		vendorName: vendorName,
		actions:    make(map[string]Action, len(actions)),
		validate:   newValidator(),
		now:        time.Now,
		log:        logger.With("proxy." + strings.ToLower(vendorName)),
	}
	for _, a := range actions {
		p.actions[a.Name] = a
		p.names = append(p.names, a.Name)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Actions lists the valid action names.
func (p *Proxy) Actions() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Handle is the fiber handler for POST requests.
func (p *Proxy) Handle(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return p.fail(c, fiber.StatusBadRequest, msgInvalidJSON)
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return p.fail(c, fiber.StatusBadRequest, msgNotObject)
	}

	name, _ := fields["action"].(string)
	action, ok := p.actions[name]
	if !ok {
		return p.fail(c, fiber.StatusBadRequest, "Invalid action. Valid actions: "+strings.Join(p.names, ", "))
	}

	res, err := action.run(c.UserContext(), p.validate, body)
	if err != nil {
		return p.handleError(c, name, err)
	}

	metrics.ProxyRequestsTotal.WithLabelValues(p.vendorName, name, "success").Inc()

	env := models.NewSuccess(res.Key, res.Payload, p.now())
	env.With("action", name)
	for k, v := range res.Echo {
		env.With(k, v)
	}
	return c.Status(fiber.StatusOK).JSON(env)
}

// Options answers CORS preflight requests.
func (p *Proxy) Options(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).SendString("ok")
}

func (p *Proxy) handleError(c *fiber.Ctx, action string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		metrics.ProxyRequestsTotal.WithLabelValues(p.vendorName, action, "invalid").Inc()
		return p.fail(c, fiber.StatusBadRequest, reqErr.Message)
	}

	if code, ok := vendor.StatusCode(err); ok {
		metrics.ProxyRequestsTotal.WithLabelValues(p.vendorName, action, "upstream_error").Inc()
		p.log.Warn().
			Str("action", action).
			Int("upstream_status", code).
			Msg("Vendor request failed")
		return p.fail(c, code, p.vendorName+" API request failed")
	}

	metrics.ProxyRequestsTotal.WithLabelValues(p.vendorName, action, "error").Inc()
	p.log.Error().
		Err(err).
		Str("action", action).
		Msg("Proxy request failed")
	return p.fail(c, fiber.StatusInternalServerError, msgInternalError)
}

func (p *Proxy) fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(models.NewFailure(msg, p.now()))
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeParams(v *validator.Validate, body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &RequestError{Message: fmt.Sprintf("Invalid field: %s must be %s", typeErr.Field, jsonKind(typeErr.Type))}
		}
		return &RequestError{Message: msgInvalidJSON}
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		missing := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Tag() != "required" {
				return &RequestError{Message: fmt.Sprintf("Invalid field: %s", fe.Field())}
			}
			missing = append(missing, fe.Field())
		}
		sort.Strings(missing)
		return &RequestError{Message: "Missing required field: " + strings.Join(missing, ", ")}
	}
	return nil
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Bool:
		return "a boolean"
	default:
		return "a " + t.Kind().String()
	}
}
