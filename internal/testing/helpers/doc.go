// Package helpers provides HTTP test utilities for the Hiretrack API.
//
// Tokens are signed by an HS256 jwt.Service so tests never generate RSA
// keys:
//
//	svc := helpers.NewTestJWTService(t)
//	rr := helpers.NewRequest(t, http.MethodPost, "/v1/applications").
//	    WithToken(helpers.GenerateToken(t, svc, candidate)).
//	    WithBody(map[string]string{"job_id": job.ID}).
//	    Do(router)
//	helpers.AssertStatus(t, rr, http.StatusCreated)
package helpers
