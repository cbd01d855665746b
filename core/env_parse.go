package core

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOrDefault returns the trimmed value of key, or defaultValue when the
// variable is unset or blank.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed environment variables and remembers every value
// that failed to parse, so LoadConfig can report them all at once.
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, value, expected string) {
	r.errs = append(r.errs, ErrInvalidValue(key, value, expected))
}

func (r *envReader) Err() error {
	return errors.Join(r.errs...)
}

func (r *envReader) String(key, def string) string {
	return GetEnvOrDefault(key, def)
}

func (r *envReader) Int(key string, def int) int {
	value := GetEnvOrDefault(key, "")
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, "an integer")
		return def
	}
	return n
}

func (r *envReader) Float(key string, def float64) float64 {
	value := GetEnvOrDefault(key, "")
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, "a number")
		return def
	}
	return f
}

func (r *envReader) Bool(key string, def bool) bool {
	value := GetEnvOrDefault(key, "")
	if value == "" {
		return def
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	r.fail(key, value, "true or false")
	return def
}

// Duration accepts Go duration strings ("10us", "250ms", "5s").
func (r *envReader) Duration(key string, def time.Duration) time.Duration {
	value := GetEnvOrDefault(key, "")
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		r.fail(key, value, "a non-negative duration such as 10us, 250ms or 5s")
		return def
	}
	return d
}
