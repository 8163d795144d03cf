// Package jwt provides JSON Web Token utilities for the Hiretrack API.
//
// Tokens are signed with RS256 when a key pair is configured and with HS256
// when only a shared secret is set. Validation only accepts tokens whose
// header names the algorithm the service is keyed for.
//
//	svc, err := jwt.NewService(jwt.Config{
//	    Secret:         os.Getenv("JWT_SECRET"),
//	    Issuer:         "hiretrack",
//	    ExpirationMins: 60,
//	})
//
//	token, err := svc.Sign(jwt.Claims{UserID: id, Email: email, Role: "recruiter"})
//	claims, err := svc.Validate(token)
package jwt
