/*
Package api holds the wire types and server configuration of the credential
registry HTTP API. The clients subpackage implements CredentialProvider over
HTTP.

# Endpoints

	POST /api/credentials/issue              multipart: file, metadata (JSON)
	GET  /api/credentials/verify             ?fileHash= or ?jsonHash=
	POST /api/credentials/verify/file        multipart file or raw body
	POST /api/credentials/verify/metadata    JSON metadata object
	GET  /api/credentials                    ?recipient=&issuer=&limit=
	GET  /api/credentials/{fileHash}/bundle  recovery bundle
	GET  /api/custodians                     public custodian directory

Verify endpoints answer 200 with valid=true, or 404 with valid=false and
NotFoundMessage. Errors are JSON objects with a single "error" field.
*/
package api
