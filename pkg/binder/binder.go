package binder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/shishobooks/bookstore/pkg/errcodes"
	"github.com/shishobooks/bookstore/pkg/models"
)

var unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)

// Binder is a custom struct that implements the Echo Binder interface. It binds
// to a struct, uses mold to clean up the params, and validator to validate
// them.
type Binder struct {
	queryDecoder *schema.Decoder
	formDecoder  *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

// New initializes a new Binder instance with the appropriate validation
// functions registered.
func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")
	// Clients and proxies tack on params of their own (format, cache
	// busters), so unknown query keys are ignored. Form bodies stay strict.
	queryDecoder.IgnoreUnknownKeys(true)
	formDecoder := schema.NewDecoder()
	formDecoder.SetAliasTag("form")
	conform := modifiers.New()
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterCustomTypeFunc(priceValue, models.Price{})
	_ = validate.RegisterValidation(decimalGTE, decimalGTEValidator)
	_ = validate.RegisterValidation(maxDigits, maxDigitsValidator)
	_ = validate.RegisterValidation(maxWholeDigits, maxWholeDigitsValidator)
	_ = validate.RegisterValidation(decimalPlaces, decimalPlacesValidator)

	return &Binder{queryDecoder, formDecoder, conform, validate}, nil
}

// Bind binds, modifies, and validates payloads against the given struct.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()
	log := logger.FromEchoContext(c)

	disallowEmptyBody := true
	if disallow, ok := c.Get("disallow_empty_body").(bool); ok {
		disallowEmptyBody = disallow
	}

	// Chunked requests have an unknown length (-1) but still carry a body.
	hasBody := req.ContentLength > 0 ||
		(req.ContentLength < 0 && req.Body != nil && req.Body != http.NoBody)

	if hasBody {
		// request has a body
		ctype := req.Header.Get(echo.HeaderContentType)
		switch {
		// allow application/json
		case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
			dec := json.NewDecoder(req.Body)
			disallowUnknownFields := true
			if disallow, ok := c.Get("disallow_unknown_fields").(bool); ok {
				disallowUnknownFields = disallow
			}
			if disallowUnknownFields {
				dec.DisallowUnknownFields()
			}
			defer req.Body.Close()
			if err := dec.Decode(i); err != nil {
				// a chunked body can still turn out to be empty
				if errors.Is(err, io.EOF) {
					if disallowEmptyBody {
						return errcodes.EmptyRequestBody()
					}
					break
				}

				// return better error message when there are unknown fields
				if matches := unknownFieldsRE.FindAllStringSubmatch(err.Error(), -1); len(matches) > 0 && len(matches[0]) > 1 {
					return errcodes.UnknownParameter(matches[0][1])
				}

				// return better error message on type errors
				if err, ok := err.(*json.UnmarshalTypeError); ok {
					msg := formatUnmarshalTypeError(err)
					return errcodes.ValidationTypeError(msg)
				}

				log.Err(err).Error("unknown json decode error")

				return errcodes.MalformedPayload()
			}
		case strings.HasPrefix(ctype, echo.MIMEApplicationForm), strings.HasPrefix(ctype, echo.MIMEMultipartForm):
			params, err := c.FormParams()
			if err != nil {
				return errcodes.MalformedPayload()
			}
			if err := b.decodeQuery(i, params, b.formDecoder); err != nil {
				return errors.WithStack(err)
			}
		default:
			return errcodes.UnsupportedMediaType()
		}
	} else {
		// request doesn't have a body
		if req.Method == http.MethodGet || req.Method == http.MethodDelete || req.Method == http.MethodHead {
			if err := b.decodeQuery(i, c.QueryParams(), b.queryDecoder); err != nil {
				return errors.WithStack(err)
			}
		} else if disallowEmptyBody {
			return errcodes.EmptyRequestBody()
		}
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	return b.Validate(i)
}

// Validate runs the validate tags of the given struct and reports every
// failing field at once.
func (b *Binder) Validate(i interface{}) error {
	err := b.validate.Struct(i)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return errors.WithStack(err)
	}
	fields := map[string][]string{}
	for _, fe := range errs {
		fields[fe.Field()] = append(fields[fe.Field()], formatValidationError(fe))
	}
	return errcodes.FieldErrors(fields)
}

func (b *Binder) decodeQuery(i interface{}, params url.Values, decoder *schema.Decoder) error {
	err := decoder.Decode(i, params)
	if err == nil {
		return nil
	}
	errs, ok := err.(schema.MultiError)
	if !ok {
		return errors.WithStack(err)
	}

	fields := map[string][]string{}
	for key, err := range errs {
		switch err := err.(type) {
		case schema.UnknownKeyError:
			return errcodes.UnknownParameter(err.Key)
		case schema.ConversionError:
			fields[err.Key] = append(fields[err.Key], formatSchemaConversionError(err))
		case schema.EmptyFieldError:
			fields[err.Key] = append(fields[err.Key], fmt.Sprintf("%q is required", err.Key))
		default:
			fields[key] = append(fields[key], err.Error())
		}
	}
	return errcodes.FieldErrors(fields)
}
