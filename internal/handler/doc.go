// Package handler provides the HTTP endpoints of the Hiretrack API.
//
// Each handler struct wraps one service and is constructed with NewXxxHandler.
// NewRouter wires them into a ServeMux together with the authentication,
// role and job-ownership guards.
//
// # Response Format
//
// Successful responses use the envelope written by WriteData:
//
//	{"data": ..., "_links": {"self": "..."}}
//
// Errors are RFC 9457 Problem Details. MapServiceError converts service
// errors by the kind they carry: not found is 404, conflict 409, invalid
// state 422 with field "state", validation 422, forbidden 403 and
// unauthorized 401. Anything else is a logged 500.
package handler
