package telemetry

import "errors"

var (
	// ErrDisabled indicates telemetry is disabled in configuration.
	ErrDisabled = errors.New("telemetry is disabled")

	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("telemetry client not connected")

	// ErrConnectionFailed indicates the connection could not be established.
	ErrConnectionFailed = errors.New("telemetry connection failed")
)
