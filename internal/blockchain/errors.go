package blockchain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrTransport      = errors.New("rpc transport failure")
	ErrProtocol       = errors.New("rpc protocol error")
	ErrDecode         = errors.New("token account decode failure")
	ErrConfiguration  = errors.New("invalid client configuration")
)

// AddressError reports a wallet that is not a well-formed public key.
type AddressError struct {
	Address string
	Err     error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid wallet address %q: %v", e.Address, e.Err)
}

func (e *AddressError) Unwrap() []error {
	return []error{ErrInvalidAddress, e.Err}
}

// TransportError reports a network or HTTP level failure for one request.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rpc transport %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("rpc transport %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ProtocolError is a structured error object returned by the endpoint.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// DecodeError reports a token account payload that cannot be read.
type DecodeError struct {
	Reason string
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode token account (%d bytes): %s", e.Length, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

// ConfigurationError is returned when a Client cannot be constructed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("client configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
