package config

import "log/slog"

const redacted = "***REDACTED***"

// SecretString holds a sensitive value such as a connection string. Printing,
// logging, or JSON-encoding it yields a placeholder; call Unmask for the raw
// value.
type SecretString string

func (s SecretString) String() string { return redacted }

// MarshalJSON implements json.Marshaler.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Unmask returns the plaintext. Only pass it to the driver that needs it.
func (s SecretString) Unmask() string {
	return string(s)
}
