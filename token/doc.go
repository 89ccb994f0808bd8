// Package token mints and verifies the HS256 JWTs used by the auth engine.
package token
