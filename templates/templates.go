// Package templates expands handlebars variables in scenario definitions
// before evaluation starts, keeping the evaluator itself free of
// templating concerns.
package templates

import (
	"strconv"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

const (
	alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	alphabeticChars   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numericChars      = "0123456789"
	hexChars          = "0123456789abcdef"
	symbolChars       = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

type TemplateEngine struct{}

var (
	templateEngineInstance *TemplateEngine
	templateEngineOnce     sync.Once
)

// NewTemplateEngine returns the singleton instance of TemplateEngine.
// Helpers are registered exactly once; raymond panics on duplicate
// registration.
func NewTemplateEngine() *TemplateEngine {
	templateEngineOnce.Do(func() {
		RegisterHelpers()
		templateEngineInstance = &TemplateEngine{}
	})
	return templateEngineInstance
}

// Render expands a templated string against the suite variable context.
func (e *TemplateEngine) Render(text string, ctx map[string]string) (string, error) {
	tpl, err := raymond.Parse(text)
	if err != nil {
		return "", err
	}
	return tpl.Exec(ctx)
}

// RegisterHelpers registers the custom handlebars helpers available to
// scenario authors.
func RegisterHelpers() {
	raymond.RegisterHelper("uuid", func() string {
		return uuid.New().String()
	})

	// Seeded faker so expanded fixtures stay deterministic across runs.
	faker := gofakeit.New(0)
	var fakerMu sync.Mutex

	raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
		randomType := strings.ToUpper(options.HashStr("type"))
		if randomType == "" {
			randomType = "ALPHANUMERIC"
		}
		if randomType == "UUID" {
			return uuid.New().String()
		}

		length := toInt(options.HashProp("length"), 10)
		if length <= 0 {
			length = 10
		}

		chars := alphanumericChars
		switch randomType {
		case "ALPHABETIC":
			chars = alphabeticChars
		case "NUMERIC":
			chars = numericChars
		case "HEXADECIMAL":
			chars = hexChars
		case "ALPHANUMERIC_AND_SYMBOLS":
			chars = alphanumericChars + symbolChars
		}

		fakerMu.Lock()
		out := make([]byte, length)
		for i := range out {
			out[i] = chars[faker.IntRange(0, len(chars)-1)]
		}
		fakerMu.Unlock()

		result := string(out)
		if raymond.IsTrue(options.HashProp("uppercase")) {
			result = strings.ToUpper(result)
		}
		return result
	})

	raymond.RegisterHelper("mediaAsset", func(options *raymond.Options) string {
		fakerMu.Lock()
		defer fakerMu.Unlock()

		ext := strings.ToLower(options.HashStr("ext"))
		if ext == "" {
			ext = "mp4"
		}
		name := strings.ReplaceAll(strings.ToLower(faker.ProductName()), " ", "-")
		return name + "." + ext
	})

	raymond.RegisterHelper("personName", func() string {
		fakerMu.Lock()
		defer fakerMu.Unlock()
		return faker.Name()
	})

	raymond.RegisterHelper("randomInt", func(options *raymond.Options) string {
		fakerMu.Lock()
		defer fakerMu.Unlock()

		lower := toInt(options.HashProp("lower"), 0)
		upper := toInt(options.HashProp("upper"), 100)
		if lower > upper {
			lower, upper = upper, lower
		}
		return strconv.Itoa(faker.IntRange(lower, upper))
	})
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}
