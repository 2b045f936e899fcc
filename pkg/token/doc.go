// Package token creates and verifies compact HMAC-signed tokens carrying a
// JSON payload of any type.
//
// A token is base64url(JSON(payload)) + "." + base64url(HMAC-SHA256(JSON)).
// Payloads implementing Expirer are rejected by Parse after their expiry.
// Parse accepts several secrets so keys can be rotated without
// invalidating tokens already handed out.
//
//	tok, err := token.Generate(claims, secret)
//	claims, err := token.Parse[Claims](tok, time.Now(), secret, previousSecret)
package token
