/*
Package httpserver serves the credential registry API over chi.

Server owns the listener, health endpoints (/livez, /readyz, /drain,
/undrain), optional pprof under /debug and the metrics server. Handler
implements the credential routes on top of an Issuer, a Verifier, an
optional RecordStore and the custodian directory.

Errors are mapped to status codes by category:

	ErrValidation          400
	ErrAlreadyRegistered   409
	ErrNotFound            404
	ErrOutcomeUnknown      504
	ErrExternalUnavailable 503
	anything else          500

A 504 on issuance means the registry write may have landed. Clients should
verify by fileHash before retrying.
*/
package httpserver
