package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report yaml paths so messages match what users write
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and the combinations the engine cannot run
// with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fe := verrs[0]
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		return fmt.Errorf("invalid %s: %v (%s)", path, fe.Value(), constraint(fe))
	}

	switch {
	case c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "":
		return errors.New("postgres driver requires a dsn")
	case c.Vector.Adapter == "pgvector" && c.Database.Driver != "postgres":
		return errors.New("pgvector adapter requires the postgres driver")
	case c.AI.Provider == ProviderGemini && c.AI.Gemini.APIKey == "":
		return errors.New("gemini provider requires GEMINI_API_KEY")
	case c.Auth.Enabled && len(c.Auth.APIKeys) == 0:
		return errors.New("auth enabled but no api keys configured")
	}
	return nil
}

func constraint(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "ltefield":
		return "must not exceed max_limit"
	case "required":
		return "required"
	}
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + " " + fe.Param()
}
