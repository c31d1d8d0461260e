package models

import "fmt"

// ─────────────────────────────────────────────────────────────────────────────
// Fault kinds
// ─────────────────────────────────────────────────────────────────────────────

// FaultKind names an error condition an agent can carry. Installation is
// idempotent per kind: installing a kind twice replaces the earlier config.
type FaultKind string

const (
	FaultPacketLoss    FaultKind = "packet_loss"
	FaultTimeout       FaultKind = "timeout"
	FaultSNMPError     FaultKind = "snmp_error"
	FaultMalformed     FaultKind = "malformed"
	FaultDeviceFailure FaultKind = "device_failure"
)

// Valid reports whether k names a known fault kind.
func (k FaultKind) Valid() bool {
	switch k {
	case FaultPacketLoss, FaultTimeout, FaultSNMPError, FaultMalformed, FaultDeviceFailure:
		return true
	}
	return false
}

// Malformed-response variants.
const (
	MalformTruncated = "truncated"
	MalformWrongTag  = "wrong_tag"
	MalformBadLength = "bad_length"
)

// Device-failure types.
const (
	FailureReboot            = "reboot"
	FailurePowerFailure      = "power_failure"
	FailureNetworkDisconnect = "network_disconnect"
)

// Recovery policies for finite device failures.
const (
	RecoveryImmediate     = "immediate"
	RecoveryGradual       = "gradual"
	RecoveryResetCounters = "reset_counters"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fault configuration
// ─────────────────────────────────────────────────────────────────────────────

// FaultConfig is the parameter record for one installed fault. Only the
// fields relevant to the kind are consulted.
type FaultConfig struct {
	// Rate is the drop probability for packet_loss, in [0,1].
	Rate float64 `json:"rate,omitempty" yaml:"rate"`

	// Probability gates timeout / snmp_error / malformed per request.
	Probability float64 `json:"probability,omitempty" yaml:"probability"`

	// DelayMs is the injected delay for timeout faults. ReplyAfterDelay
	// selects {delay, reply} over {delay, drop}.
	DelayMs         int  `json:"delay_ms,omitempty" yaml:"delay_ms"`
	ReplyAfterDelay bool `json:"reply_after_delay,omitempty" yaml:"reply_after_delay"`

	// ErrorCode is the SNMP error-status for snmp_error faults; OIDFilter,
	// when set, restricts the fault to requests naming an OID under it.
	ErrorCode int    `json:"error_code,omitempty" yaml:"error_code"`
	OIDFilter string `json:"oid_filter,omitempty" yaml:"oid_filter"`

	// Variant selects the malformed-response corruption.
	Variant string `json:"variant,omitempty" yaml:"variant"`

	// FailureType, DurationMs, and Recovery configure device_failure.
	// power_failure ignores DurationMs (stays down until cleared).
	FailureType string `json:"failure_type,omitempty" yaml:"failure_type"`
	DurationMs  int    `json:"duration_ms,omitempty" yaml:"duration_ms"`
	Recovery    string `json:"recovery,omitempty" yaml:"recovery"`
}

// Validate checks the config fields consulted for the given kind.
func (c FaultConfig) Validate(kind FaultKind) error {
	switch kind {
	case FaultPacketLoss:
		if c.Rate < 0 || c.Rate > 1 {
			return fmt.Errorf("packet_loss rate %v outside [0,1]", c.Rate)
		}
	case FaultTimeout:
		if c.Probability < 0 || c.Probability > 1 {
			return fmt.Errorf("timeout probability %v outside [0,1]", c.Probability)
		}
		if c.DelayMs < 0 {
			return fmt.Errorf("timeout delay_ms %d negative", c.DelayMs)
		}
	case FaultSNMPError:
		if c.Probability < 0 || c.Probability > 1 {
			return fmt.Errorf("snmp_error probability %v outside [0,1]", c.Probability)
		}
		if c.ErrorCode < 0 || c.ErrorCode > 5 {
			return fmt.Errorf("snmp_error code %d outside [0,5]", c.ErrorCode)
		}
	case FaultMalformed:
		switch c.Variant {
		case MalformTruncated, MalformWrongTag, MalformBadLength:
		default:
			return fmt.Errorf("malformed variant %q unknown", c.Variant)
		}
	case FaultDeviceFailure:
		switch c.FailureType {
		case FailureReboot, FailureNetworkDisconnect:
			if c.DurationMs <= 0 {
				return fmt.Errorf("device_failure %s needs duration_ms > 0", c.FailureType)
			}
		case FailurePowerFailure:
		default:
			return fmt.Errorf("device_failure type %q unknown", c.FailureType)
		}
		switch c.Recovery {
		case "", RecoveryImmediate, RecoveryGradual, RecoveryResetCounters:
		default:
			return fmt.Errorf("recovery policy %q unknown", c.Recovery)
		}
	default:
		return fmt.Errorf("fault kind %q unknown", kind)
	}
	return nil
}
