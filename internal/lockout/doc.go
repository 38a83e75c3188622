// Package lockout tracks failed-login attempts per identity and escalates to
// progressive account lockout, suspending the identity through the injected
// directory when the threshold is crossed.
//
// State lives in one hash per identity at lockout:{identifier}. Unlike the
// generic rate limiter this component is deliberately permissive on store
// failure: an outage degrades to "not locked, one attempt noted" so the
// authentication pipeline never locks out wholesale. Callers receive both the
// permissive Info and the underlying error so the failure can be audited.
package lockout
