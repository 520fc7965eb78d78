package transcode

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// argBuilder assembles an ffmpeg argument list. Paths, URLs and numbers are
// validated as they are added; the first failure sticks and is reported by
// build. Arguments are passed to exec directly, never through a shell.
type argBuilder struct {
	args []string
	err  error
}

func newArgs(global ...string) *argBuilder {
	return &argBuilder{args: append([]string{}, global...)}
}

func (b *argBuilder) fail(err error) *argBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *argBuilder) flag(name string, values ...string) *argBuilder {
	b.args = append(b.args, name)
	b.args = append(b.args, values...)
	return b
}

func (b *argBuilder) seconds(name string, d time.Duration) *argBuilder {
	if d < 0 {
		return b.fail(fmt.Errorf("%s must not be negative: %s", name, d))
	}
	return b.flag(name, fmtSeconds(d))
}

func (b *argBuilder) input(path string) *argBuilder {
	if err := validatePath(path); err != nil {
		return b.fail(fmt.Errorf("input: %w", err))
	}
	return b.flag("-i", path)
}

func (b *argBuilder) inputURL(raw string) *argBuilder {
	if err := validateURL(raw); err != nil {
		return b.fail(fmt.Errorf("input url: %w", err))
	}
	return b.flag("-i", raw)
}

func (b *argBuilder) filter(g Geometry) *argBuilder {
	if err := g.validate(); err != nil {
		return b.fail(err)
	}
	if g.IsZero() {
		return b
	}
	return b.flag("-vf", g.Filter())
}

func (b *argBuilder) output(path string) *argBuilder {
	if err := validatePath(path); err != nil {
		return b.fail(fmt.Errorf("output: %w", err))
	}
	b.args = append(b.args, path)
	return b
}

func (b *argBuilder) build() ([]string, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.args, nil
}

func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("path is empty")
	}
	if strings.ContainsAny(p, "\x00\r\n") {
		return errors.New("path contains control characters")
	}
	// A leading dash would be parsed by ffmpeg as an option.
	if strings.HasPrefix(p, "-") {
		return fmt.Errorf("path %q must not start with '-'", p)
	}
	return nil
}

func validateURL(raw string) error {
	if strings.ContainsAny(raw, "\x00\r\n ") {
		return errors.New("url contains whitespace or control characters")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		sec = 0
	}
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
