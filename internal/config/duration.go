// ABOUTME: Duration type that decodes from strings like "5s"
// ABOUTME: Used by both the TOML file and TRUETIME_* environment variables
package config

import "time"

// Duration lets the TOML and env decoders parse durations from strings.
type Duration time.Duration

// Duration converts to a time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (d *Duration) UnmarshalText(text []byte) error {
	td, err := time.ParseDuration(string(text))
	if err == nil {
		*d = Duration(td)
	}
	return err
}

// MarshalText implements the encoding.TextMarshaler interface
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
