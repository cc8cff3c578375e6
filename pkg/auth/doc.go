// Package auth provides JWT issuance and validation, bcrypt password
// hashing and the canonical Identity of the authenticated caller.
//
// Access tokens are HMAC-signed JWTs valid for 30 minutes carrying
// {userId, role}; refresh tokens are the same shape with a 7 day expiry
// and live only in an HTTP-only cookie. Tokens are stateless: logout
// clears the cookie, there is no revocation list.
package auth
