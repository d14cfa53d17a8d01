/*
Package clients provides an HTTP client for the credential registry API.

	client := clients.NewCredentialClient("http://localhost:8080", 2*time.Minute)
	client.IssuerID = "registrar"

	resp, err := client.Issue(ctx, metadata, "diploma.pdf", file)

	verify, err := client.VerifyFile(ctx, file)
	if err == nil && !verify.Valid {
	    // not registered
	}

A 404 from a verify endpoint is a normal answer and yields Valid=false with
a nil error. Every other non-2xx status is returned as *HTTPError.
*/
package clients
